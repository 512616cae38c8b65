package service

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/service/servicetest"
	"storefront/internal/upload"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newProductService(t *testing.T, images ImageStore) (*ProductService, *servicetest.MemStore, *servicetest.Publisher) {
	t.Helper()
	static, err := catalog.LoadStatic()
	require.NoError(t, err)
	st := servicetest.NewMemStore()
	pub := &servicetest.Publisher{}
	return NewProductService(st, static, images, NewInventoryClient(nil, st), pub), st, pub
}

func ptr[T any](v T) *T { return &v }

func productInput() *ProductInput {
	return &ProductInput{
		Title:    ptr("Linen Shirt"),
		Price:    ptr(decimal.RequireFromString("49.90")),
		Category: ptr(models.CategoryMen),
		Sizes:    ptr([]string{"S", "M"}),
		Stock:    ptr(4),
	}
}

func pngUpload(t *testing.T, name string) *ImageUpload {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 1, 1))))
	return &ImageUpload{Filename: name, Content: &buf}
}

func TestProductValidation(t *testing.T) {
	svc, _, _ := newProductService(t, servicetest.NewMemImages())

	for name, mutate := range map[string]func(*ProductInput){
		"empty title":      func(in *ProductInput) { in.Title = ptr(" ") },
		"missing title":    func(in *ProductInput) { in.Title = nil },
		"negative price":   func(in *ProductInput) { in.Price = ptr(decimal.NewFromInt(-1)) },
		"fractional cents": func(in *ProductInput) { in.Price = ptr(decimal.RequireFromString("0.335")) },
		"missing price":    func(in *ProductInput) { in.Price = nil },
		"category":         func(in *ProductInput) { in.Category = ptr(models.Category("pets")) },
		"stock":            func(in *ProductInput) { in.Stock = ptr(-1) },
	} {
		in := productInput()
		mutate(in)
		_, err := svc.Create(context.Background(), in, nil)
		assert.ErrorIs(t, err, ErrValidation, name)
	}
}

func TestCatalogMergesSources(t *testing.T) {
	svc, _, _ := newProductService(t, servicetest.NewMemImages())
	p, err := svc.Create(context.Background(), productInput(), nil)
	require.NoError(t, err)

	all, err := svc.List(context.Background(), "")
	require.NoError(t, err)
	last := all[len(all)-1]
	assert.Equal(t, models.SourcePersisted, last.Source)
	assert.Equal(t, listingID(p.ID), last.ID)

	l, err := svc.Get(context.Background(), "static-1")
	require.NoError(t, err)
	assert.Equal(t, models.SourceStatic, l.Source)

	l, err = svc.Get(context.Background(), listingID(p.ID))
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt", l.Title)

	for _, id := range []string{"static-999", "999", "nope"} {
		_, err = svc.Get(context.Background(), id)
		assert.ErrorIs(t, err, ErrNotFound, id)
	}

	_, err = svc.List(context.Background(), "pets")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestUpdateReplacesLocalImage(t *testing.T) {
	images := servicetest.NewMemImages()
	svc, _, _ := newProductService(t, images)

	p, err := svc.Create(context.Background(), productInput(), pngUpload(t, "a.png"))
	require.NoError(t, err)
	first := p.Image
	require.Contains(t, images.Files, first)

	updated, err := svc.Update(context.Background(), p.ID, productInput(), pngUpload(t, "b.png"))
	require.NoError(t, err)
	assert.NotEqual(t, first, updated.Image)
	assert.NotContains(t, images.Files, first)
	assert.Contains(t, images.Files, updated.Image)

	// No attachment keeps the current image.
	kept, err := svc.Update(context.Background(), p.ID, productInput(), nil)
	require.NoError(t, err)
	assert.Equal(t, updated.Image, kept.Image)
}

func TestUpdateLeavesExternalImage(t *testing.T) {
	images := servicetest.NewMemImages()
	svc, _, _ := newProductService(t, images)

	in := productInput()
	in.ImageURL = ptr("https://cdn.example.com/shirt.jpg")
	p, err := svc.Create(context.Background(), in, nil)
	require.NoError(t, err)
	assert.Equal(t, *in.ImageURL, p.Image)

	updated, err := svc.Update(context.Background(), p.ID, productInput(), pngUpload(t, "c.png"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(updated.Image, "/uploads/"))
	assert.Len(t, images.Files, 1)
}

func TestUpdateChangesOnlySetFields(t *testing.T) {
	images := servicetest.NewMemImages()
	svc, st, _ := newProductService(t, images)

	in := productInput()
	in.Description = ptr("Breathable")
	in.Featured = ptr(true)
	p, err := svc.Create(context.Background(), in, pngUpload(t, "a.png"))
	require.NoError(t, err)

	updated, err := svc.Update(context.Background(), p.ID, &ProductInput{Title: ptr("Linen Shirt II")}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt II", updated.Title)
	assert.True(t, updated.Price.Equal(decimal.RequireFromString("49.90")), updated.Price.String())
	assert.Equal(t, 4, updated.Stock)
	assert.Equal(t, "Breathable", updated.Description)
	assert.True(t, updated.Featured)
	assert.Equal(t, models.CategoryMen, updated.Category)
	assert.Equal(t, models.StringSet{"S", "M"}, updated.Sizes)
	assert.Equal(t, p.Image, updated.Image)

	// An image alone replaces only the image.
	withImage, err := svc.Update(context.Background(), p.ID, &ProductInput{}, pngUpload(t, "b.png"))
	require.NoError(t, err)
	assert.Equal(t, "Linen Shirt II", withImage.Title)
	assert.NotEqual(t, p.Image, withImage.Image)
	assert.Equal(t, 4, st.Products[p.ID].Stock)

	_, err = svc.Update(context.Background(), p.ID, &ProductInput{Price: ptr(decimal.RequireFromString("1.005"))}, nil)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestFailedUpdateDiscardsNewImage(t *testing.T) {
	images := servicetest.NewMemImages()
	svc, st, _ := newProductService(t, images)

	p, err := svc.Create(context.Background(), productInput(), pngUpload(t, "a.png"))
	require.NoError(t, err)

	st.FailWith = errors.New("connection reset")
	_, err = svc.Update(context.Background(), p.ID, productInput(), pngUpload(t, "b.png"))
	require.Error(t, err)

	assert.Len(t, images.Files, 1)
	assert.Contains(t, images.Files, p.Image)
}

func TestDeleteRemovesImageFromDisk(t *testing.T) {
	storage, err := upload.NewStorage(t.TempDir(), "/uploads", 1<<20)
	require.NoError(t, err)
	svc, st, pub := newProductService(t, storage)

	p, err := svc.Create(context.Background(), productInput(), pngUpload(t, "a.png"))
	require.NoError(t, err)
	onDisk := filepath.Join(storage.Dir(), filepath.Base(p.Image))
	_, err = os.Stat(onDisk)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), p.ID))
	_, err = os.Stat(onDisk)
	assert.True(t, os.IsNotExist(err))
	assert.Empty(t, st.Products)
	assert.Len(t, pub.Events, 2)

	assert.ErrorIs(t, svc.Delete(context.Background(), p.ID), ErrNotFound)
}

func TestCreateRejectsNonImage(t *testing.T) {
	storage, err := upload.NewStorage(t.TempDir(), "/uploads", 1<<20)
	require.NoError(t, err)
	svc, st, _ := newProductService(t, storage)

	_, err = svc.Create(context.Background(), productInput(), &ImageUpload{
		Filename: "evil.png",
		Content:  strings.NewReader("<?php echo 1; ?>"),
	})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Empty(t, st.Products)
}
