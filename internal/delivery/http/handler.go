package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"noprime/redirector/internal/domain"
	"noprime/redirector/internal/host"
)

// Browser is the simulated host the API drives.
type Browser interface {
	OpenTab(ctx context.Context, pageURL, body string) (host.TabInfo, error)
	Navigate(ctx context.Context, id int, pageURL, body string) (host.TabInfo, error)
	SoftNavigate(ctx context.Context, id int, pageURL, body string) (host.TabInfo, error)
	CloseTab(ctx context.Context, id int) error
	Dismiss(ctx context.Context, id int) (host.TabInfo, error)
	ClickAction(ctx context.Context) (bool, error)
	CachedProduct(ctx context.Context, id int) (*domain.Detection, error)
	QueryProduct(ctx context.Context, id int) (*domain.Detection, error)
	Tab(id int) (host.TabInfo, error)
	Tabs() []host.TabInfo
	Toolbar() host.ToolbarInfo
}

// EnabledReader reports the extension-wide flag.
type EnabledReader interface {
	Enabled(ctx context.Context) (bool, error)
}

type Classifier interface {
	Classify(product *domain.ProductInfo) *domain.Detection
}

type Inspector interface {
	Inspect(ctx context.Context, pageURL string) (*domain.Detection, error)
	InspectHTML(pageURL, html string) (*domain.Detection, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	browser    Browser
	enabled    EnabledReader
	classifier Classifier
	inspector  Inspector
	timeout    time.Duration
}

func NewHandler(browser Browser, enabled EnabledReader, classifier Classifier, inspector Inspector, timeout time.Duration) *Handler {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Handler{
		browser:    browser,
		enabled:    enabled,
		classifier: classifier,
		inspector:  inspector,
		timeout:    timeout,
	}
}

type resolveRequest struct {
	Brand  string `json:"brand"`
	Title  string `json:"title" binding:"required"`
	URL    string `json:"url"`
	IsBook bool   `json:"isBook"`
	ISBN   string `json:"isbn"`
}

type pageRequest struct {
	URL  string `json:"url" binding:"required"`
	HTML string `json:"html"`
}

type navigateRequest struct {
	URL  string `json:"url" binding:"required"`
	HTML string `json:"html"`
	Soft bool   `json:"soft"` // Address change without a reload
}

type detectionResponse struct {
	Detection *domain.Detection `json:"detection"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "noprime-redirector",
	})
}

// State reports the flag, the toolbar and the open tabs.
func (h *Handler) State(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	enabled, err := h.enabled.Enabled(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"enabled": enabled,
		"toolbar": h.browser.Toolbar(),
		"tabs":    len(h.browser.Tabs()),
	})
}

// Toggle is a click on the toolbar icon.
func (h *Handler) Toggle(c *gin.Context) {
	ctx, cancel := h.context(c)
	defer cancel()

	enabled, err := h.browser.ClickAction(ctx)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": enabled})
}

// Resolve classifies already extracted product fields.
func (h *Handler) Resolve(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	detection := h.classifier.Classify(&domain.ProductInfo{
		Brand:  req.Brand,
		Title:  req.Title,
		URL:    req.URL,
		IsBook: req.IsBook,
		ISBN:   req.ISBN,
	})
	if detection == nil {
		h.fail(c, domain.ErrNotProductPage)
		return
	}
	c.JSON(http.StatusOK, detectionResponse{Detection: detection})
}

// Extract runs detection over a page body, fetching it when none is given.
func (h *Handler) Extract(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	var (
		detection *domain.Detection
		err       error
	)
	if req.HTML != "" {
		detection, err = h.inspector.InspectHTML(req.URL, req.HTML)
	} else {
		detection, err = h.inspector.Inspect(ctx, req.URL)
	}
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detectionResponse{Detection: detection})
}

func (h *Handler) ListTabs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"tabs": h.browser.Tabs()})
}

func (h *Handler) OpenTab(c *gin.Context) {
	var req pageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	info, err := h.browser.OpenTab(ctx, req.URL, req.HTML)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, info)
}

func (h *Handler) GetTab(c *gin.Context) {
	id, ok := tabID(c)
	if !ok {
		return
	}

	info, err := h.browser.Tab(id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) CloseTab(c *gin.Context) {
	id, ok := tabID(c)
	if !ok {
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	if err := h.browser.CloseTab(ctx, id); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// TabProduct returns the coordinator's cached detection for the tab.
func (h *Handler) TabProduct(c *gin.Context) {
	id, ok := tabID(c)
	if !ok {
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	detection, err := h.browser.CachedProduct(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detectionResponse{Detection: detection})
}

// QueryTab asks the tab's controller to detect again.
func (h *Handler) QueryTab(c *gin.Context) {
	id, ok := tabID(c)
	if !ok {
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	detection, err := h.browser.QueryProduct(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detectionResponse{Detection: detection})
}

func (h *Handler) NavigateTab(c *gin.Context) {
	id, ok := tabID(c)
	if !ok {
		return
	}

	var req navigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	navigate := h.browser.Navigate
	if req.Soft {
		navigate = h.browser.SoftNavigate
	}

	info, err := navigate(ctx, id, req.URL, req.HTML)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) DismissBanner(c *gin.Context) {
	id, ok := tabID(c)
	if !ok {
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	info, err := h.browser.Dismiss(ctx, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (h *Handler) context(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

func tabID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "tab id must be a positive integer"})
		return 0, false
	}
	return id, true
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		log.Errorf("❌ %s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrTabNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNotProductPage):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
