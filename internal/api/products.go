package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"storefront/internal/models"
	"storefront/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

const imageField = "image"

func (h *Handler) listProducts(c *gin.Context) {
	category := models.Category(strings.ToLower(c.Query("category")))
	listings, err := h.svc.Products.List(c.Request.Context(), category)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listings)
}

func (h *Handler) getProduct(c *gin.Context) {
	listing, err := h.svc.Products.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, listing)
}

func (h *Handler) adminListProducts(c *gin.Context) {
	products, err := h.svc.Products.AdminList(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, products)
}

func (h *Handler) adminGetProduct(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	p, err := h.svc.Products.AdminGet(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) createProduct(c *gin.Context) {
	in, file, err := bindProduct(c)
	if err != nil {
		badRequest(c, "Invalid product", err)
		return
	}
	img, closeImg, err := openImage(file)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer closeImg()

	p, err := h.svc.Products.Create(c.Request.Context(), in, img)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) updateProduct(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	in, file, err := bindProduct(c)
	if err != nil {
		badRequest(c, "Invalid product", err)
		return
	}
	img, closeImg, err := openImage(file)
	if err != nil {
		h.respondError(c, err)
		return
	}
	defer closeImg()

	p, err := h.svc.Products.Update(c.Request.Context(), id, in, img)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) deleteProduct(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	if err := h.svc.Products.Delete(c.Request.Context(), id); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Product deleted"})
}

// bindProduct reads a product from a multipart form, optionally carrying an
// image file, or from a JSON body.
func bindProduct(c *gin.Context) (*service.ProductInput, *multipart.FileHeader, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var in service.ProductInput
		if err := c.ShouldBindJSON(&in); err != nil {
			return nil, nil, err
		}
		return &in, nil, nil
	}

	in, err := productFromForm(c)
	if err != nil {
		return nil, nil, err
	}
	file, err := c.FormFile(imageField)
	if errors.Is(err, http.ErrMissingFile) {
		return in, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return in, file, nil
}

// productFromForm sets only the fields present in the form, so an update
// carrying just an image leaves the rest of the product alone.
func productFromForm(c *gin.Context) (*service.ProductInput, error) {
	in := &service.ProductInput{}

	if v, ok := c.GetPostForm("title"); ok {
		in.Title = &v
	}
	if v, ok := c.GetPostForm("description"); ok {
		in.Description = &v
	}
	if v, ok := c.GetPostForm("category"); ok {
		category := models.Category(strings.ToLower(strings.TrimSpace(v)))
		in.Category = &category
	}
	if v, ok := c.GetPostForm("image_url"); ok {
		in.ImageURL = &v
	}
	if v, ok := c.GetPostForm("price"); ok {
		price, err := decimal.NewFromString(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("price: %w", err)
		}
		in.Price = &price
	}
	if v, ok := c.GetPostForm("stock"); ok {
		stock, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("stock: %w", err)
		}
		in.Stock = &stock
	}
	if v, ok := c.GetPostForm("featured"); ok {
		featured, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return nil, fmt.Errorf("featured: %w", err)
		}
		in.Featured = &featured
	}
	if v, ok := c.GetPostForm("sizes"); ok {
		sizes, err := formList(v)
		if err != nil {
			return nil, fmt.Errorf("sizes: %w", err)
		}
		in.Sizes = &sizes
	}
	if v, ok := c.GetPostForm("colors"); ok {
		colors, err := formList(v)
		if err != nil {
			return nil, fmt.Errorf("colors: %w", err)
		}
		in.Colors = &colors
	}
	return in, nil
}

// formList accepts a JSON array or a comma separated list.
func formList(v string) ([]string, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return []string{}, nil
	}
	if strings.HasPrefix(v, "[") {
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	out := []string{}
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out, nil
}

func openImage(file *multipart.FileHeader) (*service.ImageUpload, func(), error) {
	if file == nil {
		return nil, func() {}, nil
	}
	f, err := file.Open()
	if err != nil {
		return nil, func() {}, fmt.Errorf("failed to open upload: %w", err)
	}
	return &service.ImageUpload{Filename: file.Filename, Content: f}, func() { f.Close() }, nil
}
