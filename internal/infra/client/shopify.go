package client

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/boddenberg/support-assistant-bfa-go/internal/domain"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	shopifyService = "shopify"

	discountPercentage = 0.2
	discountLifetime   = 15 * time.Minute
	discountCodePrefix = "SAVE"
	discountCodeLength = 5
)

const orderUpdateMutation = `mutation orderUpdate($input: OrderInput!) {
  orderUpdate(input: $input) {
    order { id }
    userErrors { field message }
  }
}`

const customerCreateMutation = `mutation customerCreate($input: CustomerInput!) {
  customerCreate(input: $input) {
    customer { email note }
    userErrors { field message }
  }
}`

const discountCreateMutation = `mutation discountCodeBasicCreate($basicCodeDiscount: DiscountCodeBasicInput!) {
  discountCodeBasicCreate(basicCodeDiscount: $basicCodeDiscount) {
    codeDiscountNode {
      codeDiscount {
        ... on DiscountCodeBasic {
          codes(first: 1) { nodes { code } }
        }
      }
    }
    userErrors { field message }
  }
}`

// ShopifyClient talks to the Shopify Admin API: REST for reads, GraphQL for
// order updates, customer creation and discount codes.
type ShopifyClient struct {
	httpClient  *http.Client
	baseURL     string // {shop}/admin/api/{version}
	accessToken string
	cb          *gobreaker.CircuitBreaker
	logger      *zap.Logger
	now         func() time.Time
}

// NewShopifyClient creates a new ShopifyClient.
func NewShopifyClient(httpClient *http.Client, shopURL, apiVersion, accessToken string, cb *gobreaker.CircuitBreaker, logger *zap.Logger) *ShopifyClient {
	return &ShopifyClient{
		httpClient:  httpClient,
		baseURL:     fmt.Sprintf("%s/admin/api/%s", strings.TrimRight(shopURL, "/"), apiVersion),
		accessToken: accessToken,
		cb:          cb,
		logger:      logger,
		now:         time.Now,
	}
}

// ============================================================
// REST reads
// ============================================================

// FindOrder looks an order up by its display number ("1234" or "#1234").
func (c *ShopifyClient) FindOrder(ctx context.Context, orderNumber string) (*domain.Order, error) {
	ctx, span := tracer.Start(ctx, "ShopifyClient.FindOrder")
	defer span.End()

	number := strings.TrimSpace(strings.ReplaceAll(orderNumber, "#", ""))
	span.SetAttributes(attribute.String("order.number", number))
	if number == "" {
		return nil, nil
	}

	q := url.Values{}
	q.Set("name", "#"+number)
	q.Set("status", "any")

	return execute(c.cb, shopifyService, func() (*domain.Order, error) {
		var body struct {
			Orders []domain.Order `json:"orders"`
		}
		if err := c.get(ctx, "/orders.json?"+q.Encode(), &body); err != nil {
			return nil, err
		}
		for i := range body.Orders {
			if strings.TrimPrefix(body.Orders[i].Name, "#") == number {
				return &body.Orders[i], nil
			}
		}
		return nil, nil
	})
}

// FindProduct returns the first product whose title matches name.
func (c *ShopifyClient) FindProduct(ctx context.Context, name string) (*domain.Product, error) {
	ctx, span := tracer.Start(ctx, "ShopifyClient.FindProduct")
	defer span.End()
	span.SetAttributes(attribute.String("product.name", name))

	q := url.Values{}
	q.Set("title", name)

	return execute(c.cb, shopifyService, func() (*domain.Product, error) {
		var body struct {
			Products []domain.Product `json:"products"`
		}
		if err := c.get(ctx, "/products.json?"+q.Encode(), &body); err != nil {
			return nil, err
		}
		if len(body.Products) == 0 {
			return nil, nil
		}
		return &body.Products[0], nil
	})
}

// ListActiveProductTitles returns the titles of every active product.
func (c *ShopifyClient) ListActiveProductTitles(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "ShopifyClient.ListActiveProductTitles")
	defer span.End()

	return execute(c.cb, shopifyService, func() ([]string, error) {
		var body struct {
			Products []struct {
				Title string `json:"title"`
			} `json:"products"`
		}
		if err := c.get(ctx, "/products.json?status=active&fields=title&limit=250", &body); err != nil {
			return nil, err
		}
		titles := make([]string, 0, len(body.Products))
		for _, p := range body.Products {
			titles = append(titles, p.Title)
		}
		span.SetAttributes(attribute.Int("products.count", len(titles)))
		return titles, nil
	})
}

// ============================================================
// GraphQL mutations
// ============================================================

type userError struct {
	Field   []string `json:"field"`
	Message string   `json:"message"`
}

type graphQLError struct {
	Message string `json:"message"`
}

// UpdateShippingAddress replaces the shipping address of an order, keeping
// the recipient contact details.
func (c *ShopifyClient) UpdateShippingAddress(ctx context.Context, orderID, formattedAddress string, contact domain.ContactInfo) error {
	ctx, span := tracer.Start(ctx, "ShopifyClient.UpdateShippingAddress")
	defer span.End()
	span.SetAttributes(attribute.String("order.id", orderID))

	addr := ParseAddress(formattedAddress)
	addr.FirstName = contact.FirstName
	addr.LastName = contact.LastName
	addr.Phone = contact.Phone

	variables := map[string]any{
		"input": map[string]any{
			"id":              orderID,
			"shippingAddress": addr,
		},
	}

	var data struct {
		OrderUpdate *struct {
			Order *struct {
				ID string `json:"id"`
			} `json:"order"`
			UserErrors []userError `json:"userErrors"`
		} `json:"orderUpdate"`
	}

	_, err := execute(c.cb, shopifyService, func() (struct{}, error) {
		errs, err := c.graphQL(ctx, orderUpdateMutation, variables, &data)
		if err != nil {
			return struct{}{}, err
		}
		if data.OrderUpdate == nil {
			return struct{}{}, fmt.Errorf("orderUpdate: %s", firstMessage(errs, "empty response"))
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	if ue := data.OrderUpdate.UserErrors; len(ue) > 0 {
		c.logger.Warn("shopify rejected address update",
			zap.String("order_id", orderID),
			zap.String("error", ue[0].Message),
		)
		return &domain.ErrValidation{Field: "shippingAddress", Message: ue[0].Message}
	}
	return nil
}

// CreateCustomer registers a marketing-subscribed customer carrying note.
// A taken e-mail yields *domain.ErrDuplicate.
func (c *ShopifyClient) CreateCustomer(ctx context.Context, email, note string) error {
	ctx, span := tracer.Start(ctx, "ShopifyClient.CreateCustomer")
	defer span.End()

	variables := map[string]any{
		"input": map[string]any{
			"email": email,
			"note":  note,
			"emailMarketingConsent": map[string]any{
				"marketingState": "SUBSCRIBED",
			},
		},
	}

	var data struct {
		CustomerCreate *struct {
			UserErrors []userError `json:"userErrors"`
		} `json:"customerCreate"`
	}

	_, err := execute(c.cb, shopifyService, func() (struct{}, error) {
		errs, err := c.graphQL(ctx, customerCreateMutation, variables, &data)
		if err != nil {
			return struct{}{}, err
		}
		if data.CustomerCreate == nil {
			return struct{}{}, fmt.Errorf("customerCreate: %s", firstMessage(errs, "empty response"))
		}
		return struct{}{}, nil
	})
	if err != nil {
		return err
	}

	for _, ue := range data.CustomerCreate.UserErrors {
		if strings.Contains(strings.ToLower(ue.Message), "has already been taken") {
			return &domain.ErrDuplicate{Key: email}
		}
	}
	if ue := data.CustomerCreate.UserErrors; len(ue) > 0 {
		return &domain.ErrValidation{Field: "email", Message: ue[0].Message}
	}
	return nil
}

// CreateDiscountCode creates a single-use-per-customer 20% code valid for
// fifteen minutes and returns it.
func (c *ShopifyClient) CreateDiscountCode(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "ShopifyClient.CreateDiscountCode")
	defer span.End()

	code := discountCodePrefix + randomCode(discountCodeLength)
	start := c.now().UTC()
	variables := map[string]any{
		"basicCodeDiscount": map[string]any{
			"title":                  "DISCOUNT" + randomCode(discountCodeLength),
			"code":                   code,
			"startsAt":               start.Format(time.RFC3339),
			"endsAt":                 start.Add(discountLifetime).Format(time.RFC3339),
			"customerSelection":      map[string]any{"all": true},
			"appliesOncePerCustomer": true,
			"customerGets": map[string]any{
				"value": map[string]any{"percentage": discountPercentage},
				"items": map[string]any{"all": true},
			},
		},
	}

	var data struct {
		DiscountCodeBasicCreate *struct {
			CodeDiscountNode *struct {
				CodeDiscount struct {
					Codes struct {
						Nodes []struct {
							Code string `json:"code"`
						} `json:"nodes"`
					} `json:"codes"`
				} `json:"codeDiscount"`
			} `json:"codeDiscountNode"`
			UserErrors []userError `json:"userErrors"`
		} `json:"discountCodeBasicCreate"`
	}

	_, err := execute(c.cb, shopifyService, func() (struct{}, error) {
		errs, err := c.graphQL(ctx, discountCreateMutation, variables, &data)
		if err != nil {
			return struct{}{}, err
		}
		if data.DiscountCodeBasicCreate == nil {
			return struct{}{}, fmt.Errorf("discountCodeBasicCreate: %s", firstMessage(errs, "empty response"))
		}
		return struct{}{}, nil
	})
	if err != nil {
		return "", err
	}

	created := data.DiscountCodeBasicCreate
	if len(created.UserErrors) > 0 {
		return "", &domain.ErrExternalService{
			Service: shopifyService,
			Err:     fmt.Errorf("discountCodeBasicCreate: %s", created.UserErrors[0].Message),
		}
	}
	if n := created.CodeDiscountNode; n != nil && len(n.CodeDiscount.Codes.Nodes) > 0 {
		code = n.CodeDiscount.Codes.Nodes[0].Code
	}
	c.logger.Info("discount code created", zap.String("code", code))
	return code, nil
}

// ============================================================
// Transport
// ============================================================

func (c *ShopifyClient) get(ctx context.Context, path string, out any) error {
	req, err := newJSONRequest(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)
	return doJSON(c.httpClient, shopifyService, req, out)
}

// graphQL posts a query and decodes its data member into data. Top-level
// GraphQL errors are returned for the caller to report.
func (c *ShopifyClient) graphQL(ctx context.Context, query string, variables map[string]any, data any) ([]graphQLError, error) {
	req, err := newJSONRequest(ctx, http.MethodPost, c.baseURL+"/graphql.json", map[string]any{
		"query":     query,
		"variables": variables,
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Shopify-Access-Token", c.accessToken)

	envelope := struct {
		Data   any            `json:"data"`
		Errors []graphQLError `json:"errors"`
	}{Data: data}
	if err := doJSON(c.httpClient, shopifyService, req, &envelope); err != nil {
		return nil, err
	}
	return envelope.Errors, nil
}

func firstMessage(errs []graphQLError, fallback string) string {
	if len(errs) > 0 && errs[0].Message != "" {
		return errs[0].Message
	}
	return fallback
}

const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

func randomCode(n int) string {
	var b strings.Builder
	b.Grow(n)
	for range n {
		b.WriteByte(codeAlphabet[rand.IntN(len(codeAlphabet))])
	}
	return b.String()
}
