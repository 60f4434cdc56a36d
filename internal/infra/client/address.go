package client

import (
	"regexp"
	"strings"
)

// ShippingAddress is the address block sent to the Shopify orderUpdate
// mutation. Contact fields are filled by the caller.
type ShippingAddress struct {
	Address1     string `json:"address1"`
	Address2     string `json:"address2"`
	City         string `json:"city"`
	Zip          string `json:"zip"`
	ProvinceCode string `json:"provinceCode"`
	CountryCode  string `json:"countryCode"`
	FirstName    string `json:"firstName"`
	LastName     string `json:"lastName"`
	Phone        string `json:"phone"`
}

var (
	zipCityPattern = regexp.MustCompile(`^(\d{5})\s*(.*)$`)
	numberPattern  = regexp.MustCompile(`^\d+[A-Za-z]?$`)
)

// spanishProvinceCodes maps the two-digit postal-code prefix to the ISO
// 3166-2:ES subdivision code Shopify expects.
var spanishProvinceCodes = map[string]string{
	"01": "VI", "02": "AB", "03": "A", "04": "AL", "05": "AV",
	"06": "BA", "07": "PM", "08": "B", "09": "BU", "10": "CC",
	"11": "CA", "12": "CS", "13": "CR", "14": "CO", "15": "C",
	"16": "CU", "17": "GI", "18": "GR", "19": "GU", "20": "SS",
	"21": "H", "22": "HU", "23": "J", "24": "LE", "25": "L",
	"26": "LO", "27": "LU", "28": "M", "29": "MA", "30": "MU",
	"31": "NA", "32": "OR", "33": "O", "34": "P", "35": "GC",
	"36": "PO", "37": "SA", "38": "TF", "39": "S", "40": "SG",
	"41": "SE", "42": "SO", "43": "T", "44": "TE", "45": "TO",
	"46": "V", "47": "VA", "48": "BI", "49": "ZA", "50": "Z",
	"51": "CE", "52": "ML",
}

// ProvinceCodeForZip returns the subdivision code for a Spanish postal code,
// or "" when the prefix is unknown.
func ProvinceCodeForZip(zip string) string {
	if len(zip) < 2 {
		return ""
	}
	return spanishProvinceCodes[zip[:2]]
}

// ParseAddress splits a geocoder formatted address such as
// "Calle Gran Vía, 32, 4B, 28013 Madrid, Spain" into Shopify fields.
//
// The part holding the five-digit postal code yields zip and city. A bare
// house number directly after the street joins address1; whatever sits
// between the street and the postal code becomes address2.
func ParseAddress(formatted string) ShippingAddress {
	addr := ShippingAddress{CountryCode: "ES"}

	var parts []string
	for _, p := range strings.Split(formatted, ",") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return addr
	}

	zipIdx := -1
	for i, p := range parts {
		if m := zipCityPattern.FindStringSubmatch(p); m != nil {
			addr.Zip = m[1]
			addr.City = strings.TrimSpace(m[2])
			zipIdx = i
		}
	}

	street := parts
	if zipIdx >= 0 {
		street = parts[:zipIdx]
		if addr.City == "" && zipIdx+1 < len(parts) {
			addr.City = parts[zipIdx+1]
		}
	} else if len(parts) > 1 {
		// No postal code: assume "street, ..., city, country".
		street = parts[:len(parts)-1]
		if len(street) > 1 {
			addr.City = street[len(street)-1]
			street = street[:len(street)-1]
		}
	}

	if len(street) > 0 {
		addr.Address1 = street[0]
		rest := street[1:]
		if len(rest) > 0 && numberPattern.MatchString(rest[0]) {
			addr.Address1 += " " + rest[0]
			rest = rest[1:]
		}
		addr.Address2 = strings.Join(rest, ", ")
	}

	addr.ProvinceCode = ProvinceCodeForZip(addr.Zip)
	return addr
}
