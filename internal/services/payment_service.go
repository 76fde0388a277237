package services

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	qrcode "github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/pixmoji/backend/internal/config"
	"github.com/pixmoji/backend/internal/models"
)

// PaymentService creates hosted checkout sessions for token packages and
// applies the provider's completion events to the ledger. Webhook delivery
// may repeat, so credits are keyed on the event id.
type PaymentService struct {
	ledger        *LedgerService
	validator     *validator.Validate
	cfg           *config.TokenConfig
	webhookSecret string
	baseURL       string
}

// PurchaseRequest represents the purchase-tokens request payload
type PurchaseRequest struct {
	UserEmail    string `json:"userEmail" validate:"required,email" example:"user@example.com"`
	TokenPackage string `json:"tokenPackage" validate:"required" example:"popular"`
}

// PurchaseResponse represents the purchase-tokens response
type PurchaseResponse struct {
	CheckoutURL string `json:"checkoutUrl"`
	SessionID   string `json:"sessionId"`
	QRCode      string `json:"qrCode,omitempty"` // base64 PNG of the checkout URL
}

func NewPaymentService(ledger *LedgerService, cfg *config.TokenConfig) *PaymentService {
	stripe.Key = viper.GetString("stripe.secret_key")
	return &PaymentService{
		ledger:        ledger,
		validator:     validator.New(),
		cfg:           cfg,
		webhookSecret: viper.GetString("stripe.webhook_secret"),
		baseURL:       viper.GetString("app.base_url"),
	}
}

// PurchaseTokens creates a checkout session for a token package
// @Summary Purchase tokens
// @Description Create a hosted checkout session for a token package
// @Tags payments
// @Accept json
// @Produce json
// @Param request body PurchaseRequest true "Purchase request"
// @Success 200 {object} PurchaseResponse "Checkout session created"
// @Failure 400 {object} ErrorResponse "Invalid package"
// @Failure 500 {object} ErrorResponse "Payments not configured or provider error"
// @Router /api/purchase-tokens [post]
func (s *PaymentService) PurchaseTokens(w http.ResponseWriter, r *http.Request) {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req PurchaseRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	pkg, ok := s.cfg.Packages[req.TokenPackage]
	if !ok {
		SendErrorResponse(w, "Invalid token package", http.StatusBadRequest, nil)
		return
	}

	if stripe.Key == "" {
		log.Printf("[PAYMENT] Purchase rejected, Stripe is not configured")
		SendErrorResponse(w, "Payments are not configured", http.StatusInternalServerError, nil)
		return
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.cfg.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(fmt.Sprintf("%s (%d tokens)", pkg.Name, pkg.Tokens)),
					},
					UnitAmount: stripe.Int64(pkg.PriceCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode: stripe.String(stripe.CheckoutSessionModePayment),
		SuccessURL: stripe.String(
			fmt.Sprintf("%s/purchase-success?session_id={CHECKOUT_SESSION_ID}", s.baseURL)),
		CancelURL: stripe.String(fmt.Sprintf("%s/purchase-cancelled", s.baseURL)),
		Metadata: map[string]string{
			"userEmail": req.UserEmail,
			"tokens":    strconv.Itoa(pkg.Tokens),
			"package":   pkg.ID,
		},
	}

	sess, err := session.New(params)
	if err != nil {
		log.Printf("[PAYMENT] Failed to create checkout session for %s: %v", req.UserEmail, err)
		SendErrorResponse(w, "Failed to create checkout session", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[PAYMENT] Checkout session %s created for %s (%s)", sess.ID, req.UserEmail, pkg.ID)

	resp := PurchaseResponse{
		CheckoutURL: sess.URL,
		SessionID:   sess.ID,
	}
	// QR of the checkout URL so payment can be completed on another device.
	if png, err := qrcode.Encode(sess.URL, qrcode.Medium, 256); err == nil {
		resp.QRCode = base64.StdEncoding.EncodeToString(png)
	} else {
		log.Printf("[PAYMENT] Failed to render checkout QR: %v", err)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// StripeWebhook applies provider payment events to the ledger
// @Summary Stripe webhook
// @Description Receive and verify Stripe events; credits are idempotent per event id
// @Tags payments
// @Accept json
// @Produce json
// @Success 200 {object} map[string]bool "Event received"
// @Failure 400 {object} ErrorResponse "Signature verification failed"
// @Router /api/stripe-webhook [post]
func (s *PaymentService) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 65536))
	if err != nil {
		SendErrorResponse(w, "Failed to read request body", http.StatusBadRequest, nil)
		return
	}

	// Signature verification happens before anything can touch the ledger.
	event, err := webhook.ConstructEvent(payload, r.Header.Get("Stripe-Signature"), s.webhookSecret)
	if err != nil {
		log.Printf("[PAYMENT] Webhook signature verification failed: %v", err)
		SendErrorResponse(w, "Webhook signature verification failed", http.StatusBadRequest, nil)
		return
	}

	switch event.Type {
	case "checkout.session.completed":
		var sess stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
			log.Printf("[PAYMENT] Failed to parse checkout session from event %s: %v", event.ID, err)
			break
		}

		email := sess.Metadata["userEmail"]
		tokens, convErr := strconv.Atoi(sess.Metadata["tokens"])
		if email == "" || convErr != nil || tokens <= 0 {
			// A malformed event cannot be fixed by redelivery; acknowledge it.
			log.Printf("[PAYMENT] Event %s has unusable metadata (email=%q tokens=%q)",
				event.ID, email, sess.Metadata["tokens"])
			break
		}

		pkgName := sess.Metadata["package"]
		if pkg, ok := s.cfg.Packages[pkgName]; ok {
			pkgName = pkg.Name
		}

		account, err := s.ledger.Credit(r.Context(), email, tokens,
			models.TxKindPurchase, fmt.Sprintf("%s purchase", pkgName), event.ID)
		if err != nil {
			// Storage failure: let the provider redeliver; the event-id
			// guard makes the retry safe.
			log.Printf("[PAYMENT] Failed to credit %d tokens to %s for event %s: %v",
				tokens, email, event.ID, err)
			SendErrorResponse(w, "Failed to apply payment", http.StatusInternalServerError, nil)
			return
		}
		log.Printf("[PAYMENT] Event %s credited %d tokens to %s, balance now %d",
			event.ID, tokens, email, account.Balance)

	default:
		log.Printf("[PAYMENT] Ignoring event type %s", event.Type)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"received": true})
}
