package product

import (
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vitrine/service/internal/asset"
	"github.com/vitrine/service/internal/middleware"
	"github.com/vitrine/service/internal/response"
	"github.com/vitrine/service/internal/storage"
)

const (
	// multipartMemory is how much of a multipart body is kept in memory before spilling to disk.
	multipartMemory = 8 << 20
	// formOverhead is the allowance for form fields and multipart framing on top of the file itself.
	formOverhead = 1 << 20
)

// Handler holds HTTP handlers for product endpoints.
type Handler struct {
	svc     *Service
	maxBody int64
}

// NewHandler creates a new product Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc, maxBody: svc.Policy().MaxBytes + formOverhead}
}

// List godoc
//
//	@Summary		List products
//	@Description	Returns every product with its image URL. Ordered by id unless sort=name.
//	@Tags			products
//	@Produce		json
//	@Param			sort	query		string	false	"Sort column"	Enums(id, name)
//	@Success		200		{object}	response.Envelope{data=[]Product}
//	@Failure		500		{object}	response.Envelope
//	@Router			/products [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.List(r.Context(), ParseOrder(r.URL.Query().Get("sort")))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.svc.Locate(requestOrigin(r), products...)
	response.OK(w, "success", products)
}

// Get godoc
//
//	@Summary		Get product
//	@Tags			products
//	@Produce		json
//	@Param			id	path		int	true	"Product ID"
//	@Success		200	{object}	response.Envelope{data=Product}
//	@Failure		400	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/products/{id} [get]
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	p, err := h.svc.Get(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	h.svc.Locate(requestOrigin(r), p)
	response.OK(w, "success", p)
}

// Create godoc
//
//	@Summary		Create product
//	@Description	Creates a product with an image. The image is stored under the SHA-256 of its bytes.
//	@Tags			products
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			name		formData	string	true	"Product name"
//	@Param			description	formData	string	false	"Description"
//	@Param			category	formData	string	false	"Category"
//	@Param			file		formData	file	true	"Image (.jpg, .jpeg, .png, .gif by default)"
//	@Success		201			{object}	response.Envelope{data=Product}
//	@Failure		400			{object}	response.Envelope
//	@Failure		401			{object}	response.Envelope
//	@Failure		422			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/products [post]
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	if !h.parseForm(w, r) {
		return
	}
	upload, err := h.readUpload(r)
	if err != nil {
		response.BadRequest(w, "invalid file upload")
		return
	}

	p, err := h.svc.Create(r.Context(), CreateInput{
		Name:        r.PostFormValue("name"),
		Description: formField(r, "description"),
		Category:    formField(r, "category"),
		Upload:      upload,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	logWrite(r, "create", p)
	h.svc.Locate(requestOrigin(r), p)
	response.Created(w, "Product created successfully", p)
}

// Update godoc
//
//	@Summary		Update product
//	@Description	Updates the given fields. Omitted fields are unchanged; an empty description or category clears it. Sending a file replaces the image and removes the previous one.
//	@Tags			products
//	@Accept			multipart/form-data
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id			path		int		true	"Product ID"
//	@Param			name		formData	string	false	"Product name"
//	@Param			description	formData	string	false	"Description"
//	@Param			category	formData	string	false	"Category"
//	@Param			file		formData	file	false	"Replacement image"
//	@Success		200			{object}	response.Envelope{data=Product}
//	@Failure		400			{object}	response.Envelope
//	@Failure		401			{object}	response.Envelope
//	@Failure		404			{object}	response.Envelope
//	@Failure		422			{object}	response.Envelope
//	@Failure		500			{object}	response.Envelope
//	@Router			/products/{id} [put]
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if !h.parseForm(w, r) {
		return
	}
	upload, err := h.readUpload(r)
	if err != nil {
		response.BadRequest(w, "invalid file upload")
		return
	}

	patch := Patch{
		Name:        formField(r, "name"),
		Description: formField(r, "description"),
		Category:    formField(r, "category"),
	}
	// An empty name field means "keep the current name".
	if patch.Name != nil && *patch.Name == "" {
		patch.Name = nil
	}

	p, err := h.svc.Update(r.Context(), id, patch, upload)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	logWrite(r, "update", p)
	h.svc.Locate(requestOrigin(r), p)
	response.OK(w, "Product updated successfully", p)
}

// Delete godoc
//
//	@Summary		Delete product
//	@Description	Deletes the product, then its image.
//	@Tags			products
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		int	true	"Product ID"
//	@Success		200	{object}	response.Envelope{data=Product}
//	@Failure		400	{object}	response.Envelope
//	@Failure		401	{object}	response.Envelope
//	@Failure		404	{object}	response.Envelope
//	@Failure		500	{object}	response.Envelope
//	@Router			/products/{id} [delete]
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}

	p, err := h.svc.Delete(r.Context(), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	logWrite(r, "delete", p)
	response.OK(w, "Product deleted successfully", p)
}

// fail maps service errors onto HTTP statuses.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var input *InputError
	var reject *asset.RejectError

	switch {
	case errors.As(err, &input):
		response.BadRequest(w, input.Message)
	case errors.As(err, &reject):
		response.UnprocessableEntity(w, reject.Message)
	case errors.Is(err, ErrNotFound):
		response.NotFound(w, "product not found")
	case errors.Is(err, storage.ErrWriteFailed):
		log.Printf("product: %s %s: %v", r.Method, r.URL.Path, err)
		response.Error(w, http.StatusInternalServerError, "failed to save file")
	default:
		log.Printf("product: %s %s: %v", r.Method, r.URL.Path, err)
		response.InternalError(w)
	}
}

// parseForm reads a multipart or urlencoded body, capped at the upload limit plus overhead.
func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBody)

	var err error
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		err = r.ParseMultipartForm(multipartMemory)
	} else {
		err = r.ParseForm()
	}
	if err == nil {
		return true
	}

	var tooBig *http.MaxBytesError
	if errors.As(err, &tooBig) {
		response.UnprocessableEntity(w, h.svc.Policy().SizeLimitMessage)
		return false
	}
	response.BadRequest(w, "invalid form body")
	return false
}

// readUpload returns the "file" part, or nil when none was sent. At most
// MaxBytes+1 bytes are read so the validator can still see an oversized file.
func (h *Handler) readUpload(r *http.Request) (*asset.Upload, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	file, header, err := r.FormFile("file")
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, h.svc.Policy().MaxBytes+1))
	if err != nil {
		return nil, err
	}
	return &asset.Upload{Filename: header.Filename, Data: data}, nil
}

// logWrite records which token subject changed a product.
func logWrite(r *http.Request, action string, p *Product) {
	actor := middleware.Subject(r.Context())
	if actor == "" {
		actor = "anonymous"
	}
	log.Printf("product: %s id=%d image=%s by %s", action, p.ID, p.Image, actor)
}

// formField distinguishes an omitted field (nil) from one sent empty.
func formField(r *http.Request, key string) *string {
	vs, ok := r.PostForm[key]
	if !ok || len(vs) == 0 {
		return nil
	}
	v := vs[0]
	return &v
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(w, "invalid product id")
		return 0, false
	}
	return id, true
}

// requestOrigin returns the scheme and host the client used, honouring X-Forwarded-Proto.
func requestOrigin(r *http.Request) storage.Origin {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		switch p := strings.ToLower(strings.TrimSpace(strings.Split(proto, ",")[0])); p {
		case "http", "https":
			scheme = p
		}
	}
	return storage.Origin{Scheme: scheme, Host: r.Host}
}
