// internal/supplier/normalizer.go
package supplier

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/ozstock/reseller-backend/internal/models"
)

const (
	defaultTitle   = "Unknown Product"
	maxTitleLength = 200

	// Supplier prices under this ceiling are assumed to be USD and scaled
	// by usdToAUDRate. This is a fixed approximation carried over from the
	// original import behavior, not an exchange-rate lookup.
	foreignPriceCeiling = 1000.0
	usdToAUDRate        = 1.5

	maxFeatures      = 8
	maxTitleFeatures = 3
)

var (
	nonPriceChars = regexp.MustCompile(`[^0-9.]`)
	whitespaceRun = regexp.MustCompile(`\s+`)
	quantityLeft  = regexp.MustCompile(`(\d+)\s+left`)
	brandAfterBy  = regexp.MustCompile(`(?i)\bby\s+([A-Z][\w&.-]*)`)
	brandLeading  = regexp.MustCompile(`^([A-Z][A-Za-z0-9]+)\b`)
	titleStorage  = regexp.MustCompile(`(?i)\b(\d+)\s?(GB|TB)\b`)
	titleScreen   = regexp.MustCompile(`(?i)\b(\d+(?:\.\d+)?)[\s-]?(?:inch|")`)
)

// NormalizedProduct is the canonical shape derived from one raw supplier
// payload. Title, StockStatus, Currency and ScrapedAt are always set.
type NormalizedProduct struct {
	Title         string
	Brand         string
	Category      string
	Description   string
	Price         float64
	OriginalPrice float64
	Currency      string
	StockStatus   models.StockStatus
	StockQuantity *int
	RatingAverage float64
	RatingCount   int64
	Features      []string
	Images        []string
	URL           string
	ScrapedAt     time.Time
}

// Normalize maps an arbitrary supplier payload into a NormalizedProduct.
// Pure function: no I/O, no side effects. Different upstream response
// shapes alias the same logical field under different names, so every
// field is resolved against an ordered priority list.
func Normalize(payload map[string]interface{}, asin string) *NormalizedProduct {
	title := cleanTitle(stringField(payload, "product_title", "title", "name"))
	description := stringField(payload, "product_description", "description", "about")
	availability := stringField(payload, "product_availability", "availability", "stock_status")

	return &NormalizedProduct{
		Title:         title,
		Brand:         extractBrand(payload, title),
		Category:      stringField(payload, "product_category", "category"),
		Description:   description,
		Price:         priceField(payload, "product_price", "price", "app_sale_price", "current_price"),
		OriginalPrice: priceField(payload, "product_original_price", "original_price", "list_price"),
		Currency:      "AUD",
		StockStatus:   classifyStock(availability),
		StockQuantity: stockQuantity(availability),
		RatingAverage: numberField(payload, "product_star_rating", "rating", "stars"),
		RatingCount:   int64(numberField(payload, "product_num_ratings", "ratings_total", "review_count")),
		Features:      extractFeatures(payload, title, description),
		Images:        collectImages(payload),
		URL:           productURL(payload, asin),
		ScrapedAt:     time.Now(),
	}
}

func cleanTitle(title string) string {
	title = strings.TrimSpace(whitespaceRun.ReplaceAllString(title, " "))
	if title == "" {
		return defaultTitle
	}
	return truncateRunes(title, maxTitleLength)
}

// truncateRunes cuts s to at most limit bytes without splitting a
// multibyte character, so the result stays valid UTF-8.
func truncateRunes(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// stringField returns the first non-empty string value among keys.
func stringField(payload map[string]interface{}, keys ...string) string {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok {
			if trimmed := strings.TrimSpace(value); trimmed != "" {
				return trimmed
			}
		}
	}
	return ""
}

// numberField returns the first parseable numeric value among keys,
// coercing strings when necessary.
func numberField(payload map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		switch value := payload[key].(type) {
		case float64:
			return value
		case int:
			return float64(value)
		case string:
			if parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
				return parsed
			}
		}
	}
	return 0
}

// priceField parses the first usable price among keys and applies the
// fixed USD heuristic to values under the foreign price ceiling.
func priceField(payload map[string]interface{}, keys ...string) float64 {
	for _, key := range keys {
		var parsed float64
		switch value := payload[key].(type) {
		case float64:
			parsed = value
		case int:
			parsed = float64(value)
		case string:
			parsed = parsePrice(value)
		default:
			continue
		}
		if parsed > 0 {
			return localizePrice(parsed)
		}
	}
	return 0
}

func parsePrice(raw string) float64 {
	stripped := nonPriceChars.ReplaceAllString(raw, "")
	if stripped == "" {
		return 0
	}
	parsed, err := strconv.ParseFloat(stripped, 64)
	if err != nil {
		return 0
	}
	return parsed
}

func localizePrice(price float64) float64 {
	if price > 0 && price < foreignPriceCeiling {
		price *= usdToAUDRate
	}
	return math.Round(price*100) / 100
}

// classifyStock buckets a free-text availability string into exactly one
// stock status, defaulting to in-stock when the text is absent or
// unrecognized.
func classifyStock(availability string) models.StockStatus {
	text := strings.ToLower(availability)
	switch {
	case text == "":
		return models.StockStatusInStock
	case strings.Contains(text, "out of stock"),
		strings.Contains(text, "unavailable"),
		strings.Contains(text, "sold out"):
		return models.StockStatusOutOfStock
	case strings.Contains(text, "only") && strings.Contains(text, "left"),
		strings.Contains(text, "left in stock"),
		strings.Contains(text, "limited"),
		strings.Contains(text, "low stock"):
		return models.StockStatusLimitedStock
	default:
		return models.StockStatusInStock
	}
}

func stockQuantity(availability string) *int {
	match := quantityLeft.FindStringSubmatch(strings.ToLower(availability))
	if match == nil {
		return nil
	}
	quantity, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}
	return &quantity
}

func extractBrand(payload map[string]interface{}, title string) string {
	if brand := stringField(payload, "product_brand", "brand", "manufacturer"); brand != "" {
		return brand
	}
	if match := brandAfterBy.FindStringSubmatch(title); match != nil {
		return match[1]
	}
	if match := brandLeading.FindStringSubmatch(title); match != nil {
		return match[1]
	}
	return ""
}

// extractFeatures merges explicit feature arrays, falls back to bullet
// characters in the description, then to regex-derived hints from the
// title as a last resort.
func extractFeatures(payload map[string]interface{}, title, description string) []string {
	var features []string
	for _, key := range []string{"about_product", "product_features", "features", "bullet_points"} {
		features = append(features, stringSlice(payload[key])...)
	}

	if len(features) == 0 && strings.Contains(description, "•") {
		for _, part := range strings.Split(description, "•") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				features = append(features, trimmed)
			}
		}
	}

	if len(features) == 0 {
		features = featuresFromTitle(title)
	}

	if len(features) > maxFeatures {
		features = features[:maxFeatures]
	}
	return features
}

func featuresFromTitle(title string) []string {
	var features []string

	if match := titleStorage.FindStringSubmatch(title); match != nil {
		features = append(features, fmt.Sprintf("%s%s storage", match[1], strings.ToUpper(match[2])))
	}
	if match := titleScreen.FindStringSubmatch(title); match != nil {
		features = append(features, fmt.Sprintf("%s-inch display", match[1]))
	}

	lower := strings.ToLower(title)
	keywords := []struct {
		needle  string
		feature string
	}{
		{"wireless", "Wireless connectivity"},
		{"bluetooth", "Bluetooth enabled"},
		{"camera", "Built-in camera"},
		{"battery", "Long battery life"},
	}
	for _, kw := range keywords {
		if strings.Contains(lower, kw.needle) {
			features = append(features, kw.feature)
		}
	}

	if len(features) > maxTitleFeatures {
		features = features[:maxTitleFeatures]
	}
	return features
}

// collectImages concatenates single-image and image-array fields,
// keeping string entries only.
func collectImages(payload map[string]interface{}) []string {
	var images []string
	if photo := stringField(payload, "product_photo", "main_image", "thumbnail"); photo != "" {
		images = append(images, photo)
	}
	for _, key := range []string{"product_photos", "images", "image_urls"} {
		images = append(images, stringSlice(payload[key])...)
	}
	return images
}

func stringSlice(value interface{}) []string {
	raw, ok := value.([]interface{})
	if !ok {
		return nil
	}
	var result []string
	for _, entry := range raw {
		if s, ok := entry.(string); ok {
			if trimmed := strings.TrimSpace(s); trimmed != "" {
				result = append(result, trimmed)
			}
		}
	}
	return result
}

func productURL(payload map[string]interface{}, asin string) string {
	if u := stringField(payload, "product_url", "url", "link"); u != "" {
		return u
	}
	return "https://www.amazon.com.au/dp/" + asin
}
