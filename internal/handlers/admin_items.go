package handlers

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/alextreichler/storefront/internal/models"
	"github.com/alextreichler/storefront/internal/orders"
	"github.com/google/uuid"
	"github.com/nfnt/resize"
	"github.com/shopspring/decimal"
)

const (
	maxUploadBytes = 10 << 20 // 10MB
	maxImageWidth  = 800
)

type productRequest struct {
	Name        string           `json:"name" validate:"required,min=3,max=255"`
	Description string           `json:"description" validate:"required,min=10"`
	Price       *decimal.Decimal `json:"price" validate:"required"`
	Category    string           `json:"category" validate:"max=100"`
	Image       string           `json:"image" validate:"max=500"`
	Stock       *int             `json:"stock" validate:"required,gte=0"`
}

func (req *productRequest) normalize() {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.Category = strings.TrimSpace(req.Category)
	req.Image = strings.TrimSpace(req.Image)
}

func (req *productRequest) apply(p *models.Product) error {
	if req.Price.IsNegative() {
		return &orders.ValidationError{Field: "price", Message: "must be at least 0"}
	}
	p.Name = req.Name
	p.Description = req.Description
	p.Price = req.Price.Round(2)
	p.Category = req.Category
	p.Image = req.Image
	p.Stock = *req.Stock
	return nil
}

func (h *CatalogHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p := &models.Product{}
	if err := req.apply(p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.Store.CreateProduct(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	slog.Info("Product created", "product_id", p.ID, "admin_id", currentUser(r).ID)
	writeJSON(w, http.StatusCreated, p)
}

func (h *CatalogHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	var req productRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeServiceError(w, r, err)
		return
	}

	p, err := h.Store.GetProductByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := req.apply(p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.Store.UpdateProduct(r.Context(), p); err != nil {
		writeServiceError(w, r, err)
		return
	}
	slog.Info("Product updated", "product_id", p.ID, "admin_id", currentUser(r).ID)
	writeJSON(w, http.StatusOK, p)
}

func (h *CatalogHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if err := h.Store.DeleteProduct(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}
	slog.Info("Product deleted", "product_id", id, "admin_id", currentUser(r).ID)
	w.WriteHeader(http.StatusNoContent)
}

// UploadImage accepts a PNG or JPEG in the "image" form field, scales it down
// to at most 800px wide and stores it as JPEG under the upload directory.
func (h *CatalogHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	if _, err := h.Store.GetProductByID(r.Context(), id); err != nil {
		writeServiceError(w, r, err)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes+1024)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "File too large. Max 10MB.")
		return
	}
	file, header, err := r.FormFile("image")
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "image: file is required")
		return
	}
	defer file.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(header.Filename)) {
	case ".png":
		img, err = png.Decode(file)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(file)
	default:
		writeError(w, http.StatusBadRequest, "validation_failed", "Unsupported image format. Only PNG, JPG, JPEG are allowed.")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "Failed to decode image.")
		return
	}

	if img.Bounds().Dx() > maxImageWidth {
		img = resize.Resize(maxImageWidth, 0, img, resize.Lanczos3)
	}

	filename := fmt.Sprintf("%s.jpg", uuid.New().String())
	if err := saveJPEG(filepath.Join(h.UploadDir, filename), img); err != nil {
		writeServiceError(w, r, fmt.Errorf("save product image: %w", err))
		return
	}

	url := "/uploads/" + filename
	if err := h.Store.UpdateProductImage(r.Context(), id, url); err != nil {
		writeServiceError(w, r, err)
		return
	}
	p, err := h.Store.GetProductByID(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func saveJPEG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := jpeg.Encode(out, img, &jpeg.Options{Quality: 80}); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
