package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Sentinel the classifier writes when the user named something that does not exist.
const NotFound = "not_found"

// Parameters is the flat slot bag extracted from a message.
// Every slot defaults to "" or false; no slot is ever absent.
type Parameters struct {
	OrderNumber              string `json:"order_number"`
	Email                    string `json:"email"`
	ProductHandle            string `json:"product_handle"`
	ProductName              string `json:"product_name"`
	ProductType              string `json:"product_type"`
	ProductSize              string `json:"product_size"`
	NewDeliveryInfo          string `json:"new_delivery_info"`
	DeliveryStatus           string `json:"delivery_status"`
	TrackingNumber           string `json:"tracking_number"`
	DeliveryAddressConfirmed bool   `json:"delivery_address_confirmed"`
	ReturnType               string `json:"return_type"`
	ReturnReason             string `json:"return_reason"`
	ReturnsWebsiteSent       bool   `json:"returns_website_sent"`
	SizeQuery                string `json:"size_query"`
	UpdateType               string `json:"update_type"`
	Height                   string `json:"height"`
	Weight                   string `json:"weight"`
	UsualSize                string `json:"usual_size"`
	Fit                      string `json:"fit"`
}

// HasOrderInfo reports whether both order number and e-mail are known.
func (p *Parameters) HasOrderInfo() bool {
	return p.OrderNumber != "" && p.Email != ""
}

// UnmarshalJSON accepts the loose shapes models produce: booleans as
// "true"/"false" strings, numbers where strings are expected, nulls and
// unknown keys.
func (p *Parameters) UnmarshalJSON(b []byte) error {
	var raw map[string]any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = ParametersFromMap(raw)
	return nil
}

// ParametersFromMap coerces an untyped slot map into Parameters.
func ParametersFromMap(raw map[string]any) Parameters {
	s := func(key string) string { return coerceString(raw[key]) }
	b := func(key string) bool { return coerceBool(raw[key]) }

	return Parameters{
		OrderNumber:              s("order_number"),
		Email:                    s("email"),
		ProductHandle:            s("product_handle"),
		ProductName:              s("product_name"),
		ProductType:              s("product_type"),
		ProductSize:              s("product_size"),
		NewDeliveryInfo:          s("new_delivery_info"),
		DeliveryStatus:           s("delivery_status"),
		TrackingNumber:           s("tracking_number"),
		DeliveryAddressConfirmed: b("delivery_address_confirmed"),
		ReturnType:               s("return_type"),
		ReturnReason:             s("return_reason"),
		ReturnsWebsiteSent:       b("returns_website_sent"),
		SizeQuery:                s("size_query"),
		UpdateType:               s("update_type"),
		Height:                   s("height"),
		Weight:                   s("weight"),
		UsualSize:                s("usual_size"),
		Fit:                      s("fit"),
	}
}

func coerceString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		if t {
			return "true"
		}
		return ""
	default:
		return ""
	}
}

func coerceBool(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		ok, err := strconv.ParseBool(strings.TrimSpace(t))
		return err == nil && ok
	default:
		return false
	}
}

// Overlay returns base with every slot that is set in p taking precedence.
// A slot is set when it is a non-empty string or true.
func (p Parameters) Overlay(base Parameters) Parameters {
	str := func(f, b string) string {
		if f != "" {
			return f
		}
		return b
	}
	bl := func(f, b bool) bool { return f || b }

	return Parameters{
		OrderNumber:              str(p.OrderNumber, base.OrderNumber),
		Email:                    str(p.Email, base.Email),
		ProductHandle:            str(p.ProductHandle, base.ProductHandle),
		ProductName:              str(p.ProductName, base.ProductName),
		ProductType:              str(p.ProductType, base.ProductType),
		ProductSize:              str(p.ProductSize, base.ProductSize),
		NewDeliveryInfo:          str(p.NewDeliveryInfo, base.NewDeliveryInfo),
		DeliveryStatus:           str(p.DeliveryStatus, base.DeliveryStatus),
		TrackingNumber:           str(p.TrackingNumber, base.TrackingNumber),
		DeliveryAddressConfirmed: bl(p.DeliveryAddressConfirmed, base.DeliveryAddressConfirmed),
		ReturnType:               str(p.ReturnType, base.ReturnType),
		ReturnReason:             str(p.ReturnReason, base.ReturnReason),
		ReturnsWebsiteSent:       bl(p.ReturnsWebsiteSent, base.ReturnsWebsiteSent),
		SizeQuery:                str(p.SizeQuery, base.SizeQuery),
		UpdateType:               str(p.UpdateType, base.UpdateType),
		Height:                   str(p.Height, base.Height),
		Weight:                   str(p.Weight, base.Weight),
		UsualSize:                str(p.UsualSize, base.UsualSize),
		Fit:                      str(p.Fit, base.Fit),
	}
}

// ClearOrderScope empties every slot that belongs to one specific order.
func (p *Parameters) ClearOrderScope() {
	p.OrderNumber = ""
	p.TrackingNumber = ""
	p.NewDeliveryInfo = ""
	p.DeliveryStatus = ""
	p.DeliveryAddressConfirmed = false
	p.UpdateType = ""
	p.ReturnType = ""
	p.ReturnReason = ""
}

// ClearProductScope empties every slot that belongs to one specific product.
func (p *Parameters) ClearProductScope() {
	p.ProductName = ""
	p.ProductHandle = ""
	p.ProductType = ""
	p.ProductSize = ""
	p.SizeQuery = ""
	p.Fit = ""
}
