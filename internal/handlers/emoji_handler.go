package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/pixmoji/backend/internal/config"
	"github.com/pixmoji/backend/internal/models"
	"github.com/pixmoji/backend/internal/services"
)

// EmojiHandler exposes the generation and account endpoints over HTTP.
type EmojiHandler struct {
	generation *services.GenerationService
	ledger     *services.LedgerService
	validator  *services.ValidationHelper
	cfg        *config.GenerationConfig
}

func NewEmojiHandler(generation *services.GenerationService, ledger *services.LedgerService, cfg *config.GenerationConfig) *EmojiHandler {
	return &EmojiHandler{
		generation: generation,
		ledger:     ledger,
		validator:  services.NewValidationHelper(),
		cfg:        cfg,
	}
}

// GenerateEmoji handles a generation request
// @Summary Generate an emoji
// @Description Generate a square emoji from an uploaded image and/or a text description. Costs one token.
// @Tags generation
// @Accept multipart/form-data
// @Produce json
// @Param image formData file false "Source image"
// @Param description formData string false "Text description"
// @Param userEmail formData string true "User email"
// @Param removeBackground formData bool false "Render on a transparent background"
// @Param emojify formData bool false "Exaggerated cartoon styling"
// @Success 200 {object} map[string]interface{} "Generated emoji"
// @Failure 400 {object} services.ErrorResponse "Missing input"
// @Failure 402 {object} map[string]interface{} "Insufficient tokens"
// @Failure 500 {object} services.ErrorResponse "Generation failed"
// @Router /api/generate-emoji [post]
func (h *EmojiHandler) GenerateEmoji(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(h.cfg.MaxUploadBytes); err != nil {
		services.SendErrorResponse(w, "Invalid multipart request", http.StatusBadRequest, nil)
		return
	}

	params := services.GenerateParams{
		UserEmail:        r.FormValue("userEmail"),
		Description:      r.FormValue("description"),
		RemoveBackground: r.FormValue("removeBackground") == "true",
		Emojify:          r.FormValue("emojify") == "true",
	}

	if params.UserEmail == "" {
		services.SendErrorResponse(w, "User email is required", http.StatusBadRequest, nil)
		return
	}
	if err := h.validator.ValidateVar(params.UserEmail, "email"); err != nil {
		services.SendErrorResponse(w, "Invalid user email", http.StatusBadRequest, nil)
		return
	}

	if file, header, err := r.FormFile("image"); err == nil {
		defer file.Close()
		data, readErr := io.ReadAll(file)
		if readErr != nil {
			services.SendErrorResponse(w, "Failed to read uploaded image", http.StatusBadRequest, nil)
			return
		}
		params.Image = data
		params.ImageMime = header.Header.Get("Content-Type")
		if params.ImageMime == "" {
			params.ImageMime = http.DetectContentType(data)
		}
		params.OriginalFilename = header.Filename
	}

	if len(params.Image) == 0 && params.Description == "" {
		services.SendErrorResponse(w, "Provide an image or a description", http.StatusBadRequest, nil)
		return
	}

	result, err := h.generation.Generate(r.Context(), params)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientTokens) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusPaymentRequired)
			json.NewEncoder(w).Encode(map[string]any{
				"error":        "Insufficient tokens",
				"tokensNeeded": true,
			})
			return
		}
		log.Printf("[EMOJI] Generation failed for %s: %v", params.UserEmail, err)
		services.SendErrorResponse(w, "Failed to generate emoji", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"success":         true,
		"message":         "Emoji generated",
		"originalImage":   result.OriginalImage,
		"generatedImage":  result.GeneratedImage,
		"filename":        result.Emoji.Filename,
		"prompt":          result.Prompt,
		"tokensRemaining": result.TokensRemaining,
	})
}

// MyEmojis lists a user's emojis
// @Summary List emojis
// @Description List a user's generated emojis, newest first
// @Tags generation
// @Produce json
// @Param email path string true "User email"
// @Success 200 {object} map[string]interface{} "Emojis"
// @Failure 400 {object} services.ErrorResponse "Invalid email"
// @Failure 500 {object} services.ErrorResponse "Lookup failed"
// @Router /api/my-emojis/{email} [get]
func (h *EmojiHandler) MyEmojis(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.validator.ValidateVar(email, "required,email"); err != nil {
		services.SendErrorResponse(w, "Invalid email", http.StatusBadRequest, nil)
		return
	}

	emojis, err := h.generation.ListEmojis(r.Context(), email)
	if err != nil {
		log.Printf("[EMOJI] Failed to list emojis for %s: %v", email, err)
		services.SendErrorResponse(w, "Failed to fetch emojis", http.StatusInternalServerError, nil)
		return
	}

	type emojiView struct {
		models.Emoji
		URL         string `json:"url"`
		OriginalURL string `json:"originalUrl,omitempty"`
	}
	views := make([]emojiView, 0, len(emojis))
	for _, e := range emojis {
		v := emojiView{Emoji: e, URL: services.EmojiURL(e.Filename)}
		if e.OriginalFilename != "" {
			v.OriginalURL = services.EmojiURL(e.OriginalFilename)
		}
		views = append(views, v)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"emojis": views})
}

// UserTokens returns the token balance for an email
// @Summary Token balance
// @Description Get the token balance for a user, creating the account on first touch
// @Tags tokens
// @Produce json
// @Param email path string true "User email"
// @Success 200 {object} map[string]interface{} "Balance"
// @Failure 400 {object} services.ErrorResponse "Invalid email"
// @Failure 500 {object} services.ErrorResponse "Lookup failed"
// @Router /api/user-tokens/{email} [get]
func (h *EmojiHandler) UserTokens(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.validator.ValidateVar(email, "required,email"); err != nil {
		services.SendErrorResponse(w, "Invalid email", http.StatusBadRequest, nil)
		return
	}

	account, created, err := h.ledger.GetAccount(r.Context(), email)
	if err != nil {
		log.Printf("[TOKENS] Failed to fetch account for %s: %v", email, err)
		services.SendErrorResponse(w, "Failed to fetch balance", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"balance":   account.Balance,
		"totalUsed": account.TotalUsed,
		"isNewUser": created,
	})
}

// Transactions returns the token audit log for an email
// @Summary Token transactions
// @Description List a user's token transactions, newest first
// @Tags tokens
// @Produce json
// @Param email path string true "User email"
// @Success 200 {object} map[string]interface{} "Transactions"
// @Failure 400 {object} services.ErrorResponse "Invalid email"
// @Failure 500 {object} services.ErrorResponse "Lookup failed"
// @Router /api/transactions/{email} [get]
func (h *EmojiHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	email := chi.URLParam(r, "email")
	if err := h.validator.ValidateVar(email, "required,email"); err != nil {
		services.SendErrorResponse(w, "Invalid email", http.StatusBadRequest, nil)
		return
	}

	transactions, err := h.ledger.ListTransactions(r.Context(), email, 50)
	if err != nil {
		log.Printf("[TOKENS] Failed to list transactions for %s: %v", email, err)
		services.SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"transactions": transactions})
}
