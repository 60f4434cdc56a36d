package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/boddenberg/support-assistant-bfa-go/internal/chat/domain"
	maindomain "github.com/boddenberg/support-assistant-bfa-go/internal/domain"
	"github.com/boddenberg/support-assistant-bfa-go/internal/infra/observability"
	"github.com/boddenberg/support-assistant-bfa-go/internal/port"

	"go.uber.org/zap"
)

// ============================================================
// ProductSizingStrategy: product_sizing
// ============================================================

// ProductSizingStrategy recommends a size from the garment chart.
type ProductSizingStrategy struct {
	commerce  port.CommerceClient
	charts    map[string]*SizeChart
	responder *Responder
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewProductSizingStrategy creates the product_sizing strategy.
func NewProductSizingStrategy(
	commerce port.CommerceClient,
	charts map[string]*SizeChart,
	responder *Responder,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ProductSizingStrategy {
	return &ProductSizingStrategy{
		commerce:  commerce,
		charts:    charts,
		responder: responder,
		metrics:   metrics,
		logger:    logger,
	}
}

func (s *ProductSizingStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentProductSizing
}

func (s *ProductSizingStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "ProductSizingStrategy.Handle")
	defer span.End()

	params := chatCtx.Params()
	lang := chatCtx.Lang()

	if params.ProductName == "" || params.ProductName == domain.NotFound {
		s.outcome("missing_product")
		return replyAskSizingProduct.in(lang), nil
	}

	product, err := s.commerce.FindProduct(ctx, params.ProductName)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &maindomain.ErrTimeout{Operation: "product_lookup"}
		}
		s.logger.Error("product lookup failed",
			zap.String("product_name", params.ProductName),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("commerce")
		s.outcome("adapter_error")
		return replyGeneric.in(lang), nil
	}
	if product == nil {
		s.outcome("product_not_found")
		return replyProductNotFound.in(lang), nil
	}

	height, hasHeight := ParseHeightCM(params.Height)
	fit := NormalizeFit(params.Fit)
	if !hasHeight || fit == "" {
		var b strings.Builder
		b.WriteString(replySizingIntro.format(lang, product.Title))
		if !hasHeight {
			b.WriteString(replySizingNeedHeight.in(lang))
		}
		if fit == "" {
			b.WriteString(replySizingNeedFit.in(lang))
		}
		s.outcome("missing_measurements")
		return strings.TrimRight(b.String(), "\n"), nil
	}

	chart := s.charts[CategoryForTitle(product.Title)]
	if chart == nil {
		chart = s.charts[CategoryCrewneck]
	}
	size := RecommendSize(chart, height, fit)

	req := baseReply(chatCtx)
	req.Product = product
	req.Params.ProductName = product.Title
	req.SizeChart = chart
	req.Recommendation = fmt.Sprintf("%s (height %gcm, fit %s)", size, height, fit)

	s.outcome("replied")
	return s.responder.GenerateFinalAnswer(ctx, req)
}

func (s *ProductSizingStrategy) outcome(outcome string) {
	s.metrics.IncrHandlerOutcome(string(domain.IntentProductSizing), outcome)
}

// ============================================================
// RestockStrategy: restock
// ============================================================

// RestockStrategy links in-stock sizes or subscribes the customer for a
// back-in-stock notification.
type RestockStrategy struct {
	commerce      port.CommerceClient
	storefrontURL string
	metrics       *observability.Metrics
	logger        *zap.Logger
}

// NewRestockStrategy creates the restock strategy.
func NewRestockStrategy(commerce port.CommerceClient, storefrontURL string, metrics *observability.Metrics, logger *zap.Logger) *RestockStrategy {
	return &RestockStrategy{
		commerce:      commerce,
		storefrontURL: strings.TrimRight(storefrontURL, "/"),
		metrics:       metrics,
		logger:        logger,
	}
}

func (s *RestockStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentRestock
}

func (s *RestockStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "RestockStrategy.Handle")
	defer span.End()

	params := chatCtx.Params()
	lang := chatCtx.Lang()

	switch params.ProductName {
	case "":
		s.outcome("missing_product")
		return replyAskRestockProduct.in(lang), nil
	case domain.NotFound:
		s.outcome("product_not_found")
		return replyRestockProductNotFound.in(lang), nil
	}

	if params.ProductSize == "" {
		s.outcome("missing_size")
		return replyAskRestockSize.in(lang), nil
	}
	size, ok := NormalizeSize(params.ProductSize)
	if params.ProductSize == domain.NotFound || !ok {
		s.outcome("size_not_found")
		return replyRestockSizeNotFound.in(lang), nil
	}

	product, err := s.commerce.FindProduct(ctx, params.ProductName)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &maindomain.ErrTimeout{Operation: "product_lookup"}
		}
		s.logger.Error("product lookup failed",
			zap.String("product_name", params.ProductName),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("commerce")
		s.outcome("adapter_error")
		return replyGeneric.in(lang), nil
	}
	if product == nil {
		s.outcome("product_not_found")
		return replyRestockProductNamed.format(lang, params.ProductName), nil
	}

	variant := findVariant(product, size)
	if variant == nil {
		s.outcome("variant_not_found")
		return replyVariantMissing.in(lang), nil
	}
	if variant.InventoryQuantity > 0 {
		s.outcome("in_stock")
		if product.Handle == "" {
			return replyInStockNoLink.in(lang), nil
		}
		link := fmt.Sprintf("%s/products/%s?variant=%d", s.storefrontURL, product.Handle, variant.ID)
		return replyInStock.format(lang, link), nil
	}

	if params.Email == "" {
		s.outcome("missing_email")
		return replyAskRestockEmail.in(lang), nil
	}

	if err := s.commerce.CreateCustomer(ctx, params.Email, "Restock "+product.Title); err != nil {
		var dup *maindomain.ErrDuplicate
		if errors.As(err, &dup) {
			s.outcome("duplicate_email")
			return replyEmailTaken.in(lang), nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &maindomain.ErrTimeout{Operation: "customer_create"}
		}
		s.logger.Error("restock subscription failed",
			zap.String("product", product.Title),
			zap.Error(err),
		)
		s.metrics.IncrExternalError("commerce")
		s.outcome("adapter_error")
		return replyRegisterFailed.in(lang), nil
	}

	s.outcome("subscribed")
	return replyRestockSubscribed.format(lang, params.Email, product.Title), nil
}

// findVariant matches the variant title case-insensitively, also accepting
// "M / Black" style titles where the size comes first.
func findVariant(product *maindomain.Product, size string) *maindomain.Variant {
	for i := range product.Variants {
		v := &product.Variants[i]
		title := strings.TrimSpace(v.Title)
		if strings.EqualFold(title, size) {
			return v
		}
		if head, _, found := strings.Cut(title, " / "); found && strings.EqualFold(strings.TrimSpace(head), size) {
			return v
		}
	}
	return nil
}

func (s *RestockStrategy) outcome(outcome string) {
	s.metrics.IncrHandlerOutcome(string(domain.IntentRestock), outcome)
}

// ============================================================
// PromoCodeStrategy: promo_code
// ============================================================

// PromoCodeStrategy trades an e-mail sign-up for a short-lived discount.
type PromoCodeStrategy struct {
	commerce port.CommerceClient
	metrics  *observability.Metrics
	logger   *zap.Logger
}

// NewPromoCodeStrategy creates the promo_code strategy.
func NewPromoCodeStrategy(commerce port.CommerceClient, metrics *observability.Metrics, logger *zap.Logger) *PromoCodeStrategy {
	return &PromoCodeStrategy{commerce: commerce, metrics: metrics, logger: logger}
}

func (s *PromoCodeStrategy) CanHandle(intent domain.Intent) bool {
	return intent == domain.IntentPromoCode
}

func (s *PromoCodeStrategy) Handle(ctx context.Context, chatCtx *domain.ChatContext) (string, error) {
	ctx, span := chatTracer.Start(ctx, "PromoCodeStrategy.Handle")
	defer span.End()

	params := chatCtx.Params()
	lang := chatCtx.Lang()

	if params.Email == "" {
		s.outcome("missing_email")
		return replyPromoOffer.in(lang), nil
	}

	if err := s.commerce.CreateCustomer(ctx, params.Email, ""); err != nil {
		var dup *maindomain.ErrDuplicate
		if errors.As(err, &dup) {
			s.outcome("duplicate_email")
			return replyEmailTaken.in(lang), nil
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &maindomain.ErrTimeout{Operation: "customer_create"}
		}
		s.logger.Error("promo sign-up failed", zap.Error(err))
		s.metrics.IncrExternalError("commerce")
		s.outcome("adapter_error")
		return replyPromoFailed.in(lang), nil
	}

	code, err := s.commerce.CreateDiscountCode(ctx)
	if err != nil || code == "" {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", &maindomain.ErrTimeout{Operation: "discount_create"}
		}
		s.logger.Error("discount creation failed", zap.Error(err))
		s.metrics.IncrExternalError("commerce")
		s.outcome("adapter_error")
		return replyPromoFailed.in(lang), nil
	}

	s.outcome("issued")
	return replyPromoCode.format(lang, code), nil
}

func (s *PromoCodeStrategy) outcome(outcome string) {
	s.metrics.IncrHandlerOutcome(string(domain.IntentPromoCode), outcome)
}
