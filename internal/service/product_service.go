package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"storefront/internal/catalog"
	"storefront/internal/models"
	"storefront/internal/upload"
	"storefront/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// ProductInput carries product fields from either a JSON body or multipart
// form fields. Nil fields were not sent: Create requires title, price and
// category, Update changes only the fields that are set.
type ProductInput struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Category    *models.Category `json:"category"`
	Sizes       *[]string        `json:"sizes"`
	Colors      *[]string        `json:"colors"`
	Stock       *int             `json:"stock"`
	Featured    *bool            `json:"featured"`
	ImageURL    *string          `json:"image_url"`
}

func (in *ProductInput) validate() error {
	if in.Title != nil && strings.TrimSpace(*in.Title) == "" {
		return validationf("title must not be empty")
	}
	if in.Price != nil {
		if err := validateAmount("price", *in.Price); err != nil {
			return err
		}
	}
	if in.Category != nil && !in.Category.Valid() {
		return validationf("category must be one of men, women, child")
	}
	if in.Stock != nil && *in.Stock < 0 {
		return validationf("stock must not be negative")
	}
	return nil
}

func (in *ProductInput) validateNew() error {
	if in.Title == nil || in.Price == nil || in.Category == nil {
		return validationf("title, price and category are required")
	}
	return in.validate()
}

// imageURL is the external image link in the input, if any.
func (in *ProductInput) imageURL() string {
	if in.ImageURL == nil {
		return ""
	}
	return strings.TrimSpace(*in.ImageURL)
}

// ImageUpload is an image file attached to a product write.
type ImageUpload struct {
	Filename string
	Content  io.Reader
}

// ProductService serves the public catalog and admin product management
type ProductService struct {
	products  ProductRepository
	static    *catalog.Static
	images    ImageStore
	inventory *InventoryClient
	events    EventPublisher
	logger    *zap.Logger
}

func NewProductService(
	products ProductRepository,
	static *catalog.Static,
	images ImageStore,
	inventory *InventoryClient,
	events EventPublisher,
) *ProductService {
	return &ProductService{
		products:  products,
		static:    static,
		images:    images,
		inventory: inventory,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// List returns bundled and stored listings, optionally filtered by category.
func (s *ProductService) List(ctx context.Context, category models.Category) ([]catalog.Listing, error) {
	if category != "" && !category.Valid() {
		return nil, validationf("unknown category %q", category)
	}
	products, err := s.products.ListProducts(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}
	return s.static.Merge(products, category), nil
}

// Get resolves a listing id of either source.
func (s *ProductService) Get(ctx context.Context, id string) (*catalog.Listing, error) {
	ref, err := catalog.ParseRef(id)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
	}
	if ref.Source == models.SourceStatic {
		l, ok := s.static.Get(ref.Static)
		if !ok {
			return nil, fmt.Errorf("listing %s: %w", id, ErrNotFound)
		}
		return &l, nil
	}

	p, err := s.products.GetProductByID(ctx, ref.DBID)
	if err != nil {
		return nil, err
	}
	l := catalog.FromProduct(*p)
	return &l, nil
}

func (s *ProductService) AdminList(ctx context.Context) ([]models.Product, error) {
	return s.products.ListProducts(ctx, "")
}

func (s *ProductService) AdminGet(ctx context.Context, id int64) (*models.Product, error) {
	return s.products.GetProductByID(ctx, id)
}

// Create stores a new product. An attached image wins over in.ImageURL.
func (s *ProductService) Create(ctx context.Context, in *ProductInput, img *ImageUpload) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Create")
	defer span.End()

	if err := in.validateNew(); err != nil {
		return nil, err
	}

	image := in.imageURL()
	var saved string
	if img != nil {
		path, err := s.saveImage(img)
		if err != nil {
			return nil, err
		}
		image, saved = path, path
	}

	p := &models.Product{Sizes: models.StringSet{}, Colors: models.StringSet{}}
	in.apply(p)
	p.Image = image

	if err := s.products.CreateProduct(ctx, p); err != nil {
		s.discard(saved)
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	s.inventory.Sync(ctx, p)
	s.publish(ctx, p, models.ProductActionCreated)
	s.logger.Info("Product created", zap.Int64("product_id", p.ID))
	return p, nil
}

// Update changes the fields set in in and leaves the rest as stored. A newly
// attached image replaces the stored one and the previous local file is
// deleted; without an attachment the image is set from in.ImageURL or left
// unchanged.
func (s *ProductService) Update(ctx context.Context, id int64, in *ProductInput, img *ImageUpload) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "ProductService.Update")
	defer span.End()

	if err := in.validate(); err != nil {
		return nil, err
	}

	existing, err := s.products.GetProductByID(ctx, id)
	if err != nil {
		return nil, err
	}
	previousImage := existing.Image

	p := *existing
	in.apply(&p)
	if url := in.imageURL(); url != "" {
		p.Image = url
	}

	var saved string
	if img != nil {
		path, err := s.saveImage(img)
		if err != nil {
			return nil, err
		}
		p.Image, saved = path, path
	}

	if err := s.products.UpdateProduct(ctx, &p); err != nil {
		s.discard(saved)
		return nil, fmt.Errorf("failed to update product: %w", err)
	}

	if saved != "" && previousImage != saved {
		s.discard(previousImage)
	}

	s.inventory.Sync(ctx, &p)
	s.publish(ctx, &p, models.ProductActionUpdated)
	return &p, nil
}

// Delete removes the product and its locally stored image.
func (s *ProductService) Delete(ctx context.Context, id int64) error {
	ctx, span := util.StartSpan(ctx, "ProductService.Delete")
	defer span.End()

	p, err := s.products.DeleteProduct(ctx, id)
	if err != nil {
		return err
	}

	s.discard(p.Image)
	s.inventory.Forget(ctx, id)
	s.publish(ctx, p, models.ProductActionDeleted)
	s.logger.Info("Product deleted", zap.Int64("product_id", id))
	return nil
}

func (s *ProductService) saveImage(img *ImageUpload) (string, error) {
	path, err := s.images.Save(img.Filename, img.Content)
	if err != nil {
		util.ImageUploadsTotal.WithLabelValues("rejected").Inc()
		if errors.Is(err, upload.ErrUnsupportedType) || errors.Is(err, upload.ErrTooLarge) {
			return "", fmt.Errorf("%w: %v", ErrValidation, err)
		}
		return "", err
	}
	util.ImageUploadsTotal.WithLabelValues("stored").Inc()
	return path, nil
}

// discard deletes a local image; external URLs and empty paths are no-ops.
func (s *ProductService) discard(path string) {
	if path == "" || !s.images.IsLocal(path) {
		return
	}
	if _, err := s.images.Remove(path); err != nil {
		s.logger.Error("Failed to remove image", zap.String("path", path), zap.Error(err))
	}
}

func (s *ProductService) publish(ctx context.Context, p *models.Product, action string) {
	event := &models.ProductChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeProductChanged,
			Timestamp: time.Now(),
		},
		ProductID: p.ID,
		Action:    action,
		Stock:     p.Stock,
	}
	if err := s.events.PublishProductChanged(ctx, event); err != nil {
		s.logger.Error("Failed to publish ProductChanged event", zap.Error(err))
	}
}

func (in *ProductInput) apply(p *models.Product) {
	if in.Title != nil {
		p.Title = strings.TrimSpace(*in.Title)
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Price != nil {
		p.Price = *in.Price
	}
	if in.Category != nil {
		p.Category = *in.Category
	}
	if in.Sizes != nil {
		p.Sizes = models.StringSet(*in.Sizes)
	}
	if in.Colors != nil {
		p.Colors = models.StringSet(*in.Colors)
	}
	if in.Stock != nil {
		p.Stock = *in.Stock
	}
	if in.Featured != nil {
		p.Featured = *in.Featured
	}
}
