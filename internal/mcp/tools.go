package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"

	"laptopmcp/internal/model"
	"laptopmcp/internal/protocol"
)

var toolOrder = []string{
	protocol.ToolNameSearch,
	protocol.ToolNameFindSimilar,
	protocol.ToolNameGetByID,
	protocol.ToolNameRefresh,
}

type toolHandler func(context.Context, map[string]interface{}) (toolCallResult, *toolExecutionError)

type toolDefinition struct {
	Name         string                 `json:"name"`
	Description  string                 `json:"description"`
	InputSchema  map[string]interface{} `json:"inputSchema"`
	OutputSchema map[string]interface{} `json:"outputSchema,omitempty"`
	handler      toolHandler            `json:"-"`
}

type toolsCallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments,omitempty"`
}

type toolCallResult struct {
	Content           []toolContentItem `json:"content"`
	StructuredContent interface{}       `json:"structuredContent,omitempty"`
	IsError           bool              `json:"isError,omitempty"`
}

type toolContentItem struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// toolExecutionError is what a handler returns on failure. A non-zero
// rpcCode fails the whole request with that JSON-RPC error; otherwise the
// failure is reported inside a tool result with isError set.
type toolExecutionError struct {
	rpcCode int
	code    string
	message string
}

func invalidArgs(format string, args ...interface{}) *toolExecutionError {
	return &toolExecutionError{rpcCode: codeInvalidParams, message: fmt.Sprintf(format, args...)}
}

func toolFailure(code, format string, args ...interface{}) *toolExecutionError {
	return &toolExecutionError{code: code, message: fmt.Sprintf(format, args...)}
}

func internalFailure(err error) *toolExecutionError {
	return &toolExecutionError{rpcCode: codeInternalError, message: err.Error()}
}

// LaptopSearcher is the slice of the search service the tool layer uses.
type LaptopSearcher interface {
	SearchByKeyword(ctx context.Context, keyword string) ([]model.Laptop, error)
	SearchByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]model.Laptop, error)
	FindSimilarByText(ctx context.Context, description string, limit int) ([]model.Laptop, error)
	FindSimilarByID(ctx context.Context, id uint64, limit int) ([]model.Laptop, error)
	FindByProductID(ctx context.Context, productID string) (model.Laptop, error)
	Refresh(ctx context.Context) (int, error)
}

func buildToolRegistry(svc LaptopSearcher) map[string]toolDefinition {
	return map[string]toolDefinition{
		protocol.ToolNameSearch: {
			Name:         protocol.ToolNameSearch,
			Description:  "Search second-hand laptops by keyword or by price range.",
			InputSchema:  searchLaptopsInputSchema(),
			OutputSchema: laptopListOutputSchema(),
			handler:      searchLaptopsHandler(svc),
		},
		protocol.ToolNameFindSimilar: {
			Name:         protocol.ToolNameFindSimilar,
			Description:  "Find laptops similar to a free-text description or to an existing laptop.",
			InputSchema:  findSimilarInputSchema(),
			OutputSchema: laptopListOutputSchema(),
			handler:      findSimilarHandler(svc),
		},
		protocol.ToolNameGetByID: {
			Name:         protocol.ToolNameGetByID,
			Description:  "Look up one laptop by its marketplace product id.",
			InputSchema:  getByIDInputSchema(),
			OutputSchema: laptopOutputSchema(),
			handler:      getByIDHandler(svc),
		},
		protocol.ToolNameRefresh: {
			Name:         protocol.ToolNameRefresh,
			Description:  "Pull fresh listings from the configured source and store them.",
			InputSchema:  refreshInputSchema(),
			OutputSchema: refreshOutputSchema(),
			handler:      refreshHandler(svc),
		},
	}
}

func searchLaptopsHandler(svc LaptopSearcher) toolHandler {
	return func(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
		if err := assertNoUnknownArguments(args, allow("keyword", "minPrice", "maxPrice")); err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}

		keyword, present, err := parseRequiredString(args, "keyword")
		if err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}
		if present {
			laptops, err := svc.SearchByKeyword(ctx, keyword)
			if err != nil {
				return toolCallResult{}, internalFailure(err)
			}
			return laptopListResult(laptops), nil
		}

		minPrice, haveMin, err := parseNumber(args, "minPrice")
		if err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}
		maxPrice, haveMax, err := parseNumber(args, "maxPrice")
		if err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}
		if !haveMin || !haveMax {
			return toolCallResult{}, invalidArgs("keyword or both minPrice and maxPrice are required")
		}

		laptops, err := svc.SearchByPriceRange(ctx, minPrice, maxPrice)
		if err != nil {
			return toolCallResult{}, internalFailure(err)
		}
		return laptopListResult(laptops), nil
	}
}

func findSimilarHandler(svc LaptopSearcher) toolHandler {
	return func(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
		if err := assertNoUnknownArguments(args, allow("description", "laptopId", "limit")); err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}

		limit, _, err := parseOptionalIntegerWithPresence(args, "limit")
		if err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}

		description, haveDescription, err := parseRequiredString(args, "description")
		if err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}
		if haveDescription {
			laptops, err := svc.FindSimilarByText(ctx, description, limit)
			if err != nil {
				return toolCallResult{}, internalFailure(err)
			}
			return laptopListResult(laptops), nil
		}

		laptopID, haveID, err := parseOptionalIntegerWithPresence(args, "laptopId")
		if err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}
		if !haveID {
			return toolCallResult{}, invalidArgs("description or laptopId is required")
		}
		if laptopID <= 0 {
			return toolCallResult{}, invalidArgs("laptopId must be positive")
		}

		laptops, err := svc.FindSimilarByID(ctx, uint64(laptopID), limit)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return toolCallResult{}, toolFailure(protocol.ErrorCodeNotFound, "laptop not found: %d", laptopID)
			}
			return toolCallResult{}, internalFailure(err)
		}
		return laptopListResult(laptops), nil
	}
}

func getByIDHandler(svc LaptopSearcher) toolHandler {
	return func(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
		if err := assertNoUnknownArguments(args, allow("productId")); err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}

		productID, present, err := parseRequiredString(args, "productId")
		if err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}
		if !present {
			return toolCallResult{}, invalidArgs("productId is required")
		}

		laptop, err := svc.FindByProductID(ctx, productID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return toolCallResult{}, toolFailure(protocol.ErrorCodeNotFound, "laptop not found: %s", productID)
			}
			return toolCallResult{}, internalFailure(err)
		}
		return structuredResult(laptopPayload(laptop)), nil
	}
}

func refreshHandler(svc LaptopSearcher) toolHandler {
	return func(ctx context.Context, args map[string]interface{}) (toolCallResult, *toolExecutionError) {
		if err := assertNoUnknownArguments(args, allow()); err != nil {
			return toolCallResult{}, invalidArgs("%s", err.Error())
		}

		count, err := svc.Refresh(ctx)
		if err != nil {
			return toolCallResult{}, internalFailure(err)
		}
		return structuredResult(map[string]interface{}{
			"count":  count,
			"status": "ok",
		}), nil
	}
}

func laptopListResult(laptops []model.Laptop) toolCallResult {
	payloads := make([]map[string]interface{}, len(laptops))
	for i, l := range laptops {
		payloads[i] = laptopPayload(l)
	}
	return structuredResult(map[string]interface{}{
		"count":   len(laptops),
		"laptops": payloads,
	})
}

func structuredResult(payload interface{}) toolCallResult {
	text, err := json.Marshal(payload)
	if err != nil {
		text = []byte(fmt.Sprintf("%v", payload))
	}
	return toolCallResult{
		Content:           []toolContentItem{{Type: "text", Text: string(text)}},
		StructuredContent: payload,
	}
}

func newToolErrorResult(toolErr toolExecutionError) toolCallResult {
	return toolCallResult{
		IsError: true,
		Content: []toolContentItem{
			{Type: "text", Text: fmt.Sprintf("ERROR: %s: %s", toolErr.code, toolErr.message)},
		},
		StructuredContent: map[string]interface{}{
			"error": map[string]interface{}{
				"code":    toolErr.code,
				"message": toolErr.message,
			},
		},
	}
}

func laptopPayload(l model.Laptop) map[string]interface{} {
	payload := map[string]interface{}{
		"id":            l.ID,
		"productId":     l.ProductID,
		"brand":         l.Brand,
		"model":         l.Model,
		"title":         l.Title,
		"description":   l.Description,
		"price":         l.Price,
		"originalPrice": l.OriginalPrice,
		"processor":     l.Processor,
		"memory":        l.Memory,
		"storage":       l.Storage,
		"display":       l.Display,
		"condition":     l.Condition,
		"sellerName":    l.SellerName,
		"sellerRating":  l.SellerRating,
		"imageUrl":      l.ImageURL,
		"productUrl":    l.ProductURL,
	}
	if !l.CrawledAt.IsZero() {
		payload["crawledAt"] = l.CrawledAt
	}
	if !l.CreatedAt.IsZero() {
		payload["createdAt"] = l.CreatedAt
	}
	if !l.UpdatedAt.IsZero() {
		payload["updatedAt"] = l.UpdatedAt
	}
	return payload
}

// Argument parsing helpers. Tool arguments arrive as a decoded JSON
// object, so numbers are float64.

func allow(keys ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		m[k] = struct{}{}
	}
	return m
}

func assertNoUnknownArguments(args map[string]interface{}, allowed map[string]struct{}) error {
	for key := range args {
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("unknown argument: %s", key)
		}
	}
	return nil
}

func parseRequiredString(args map[string]interface{}, key string) (string, bool, error) {
	raw, ok := args[key]
	if !ok {
		return "", false, nil
	}
	value, ok := raw.(string)
	if !ok {
		return "", true, fmt.Errorf("%s must be a string", key)
	}
	value = strings.TrimSpace(value)
	if value == "" {
		return "", true, fmt.Errorf("%s must be a non-empty string", key)
	}
	return value, true, nil
}

func parseInteger(value interface{}, field string) (int, error) {
	switch v := value.(type) {
	case float64:
		if math.Trunc(v) != v {
			return 0, fmt.Errorf("%s must be an integer", field)
		}
		if v < math.MinInt || v > math.MaxInt {
			return 0, fmt.Errorf("%s is out of range", field)
		}
		return int(v), nil
	case int:
		return v, nil
	case int64:
		return int(v), nil
	default:
		return 0, fmt.Errorf("%s must be an integer", field)
	}
}

func parseOptionalIntegerWithPresence(args map[string]interface{}, key string) (int, bool, error) {
	raw, ok := args[key]
	if !ok {
		return 0, false, nil
	}
	v, err := parseInteger(raw, key)
	if err != nil {
		return 0, true, err
	}
	return v, true, nil
}

func parseNumber(args map[string]interface{}, key string) (float64, bool, error) {
	raw, ok := args[key]
	if !ok {
		return 0, false, nil
	}
	switch v := raw.(type) {
	case float64:
		return v, true, nil
	case int:
		return float64(v), true, nil
	default:
		return 0, true, fmt.Errorf("%s must be a number", key)
	}
}

// Schemas

func searchLaptopsInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"keyword":  map[string]interface{}{"type": "string", "minLength": 1, "description": "substring matched against brand, model, title and description"},
			"minPrice": map[string]interface{}{"type": "number", "minimum": 0},
			"maxPrice": map[string]interface{}{"type": "number", "minimum": 0},
		},
	}
}

func findSimilarInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"description": map[string]interface{}{"type": "string", "minLength": 1},
			"laptopId":    map[string]interface{}{"type": "integer", "minimum": 1},
			"limit":       map[string]interface{}{"type": "integer", "minimum": 1, "maximum": 50, "default": 5},
		},
	}
}

func getByIDInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"productId": map[string]interface{}{"type": "string", "minLength": 1},
		},
		"required": []string{"productId"},
	}
}

func refreshInputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties":           map[string]interface{}{},
	}
}

func laptopSchema() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"id":            map[string]interface{}{"type": "integer"},
			"productId":     map[string]interface{}{"type": "string"},
			"brand":         map[string]interface{}{"type": "string"},
			"model":         map[string]interface{}{"type": "string"},
			"title":         map[string]interface{}{"type": "string"},
			"description":   map[string]interface{}{"type": "string"},
			"price":         map[string]interface{}{"type": "number"},
			"originalPrice": map[string]interface{}{"type": "number"},
			"processor":     map[string]interface{}{"type": "string"},
			"memory":        map[string]interface{}{"type": "string"},
			"storage":       map[string]interface{}{"type": "string"},
			"display":       map[string]interface{}{"type": "string"},
			"condition":     map[string]interface{}{"type": "string"},
			"sellerName":    map[string]interface{}{"type": "string"},
			"sellerRating":  map[string]interface{}{"type": "number"},
			"imageUrl":      map[string]interface{}{"type": "string"},
			"productUrl":    map[string]interface{}{"type": "string"},
		},
	}
}

func laptopOutputSchema() map[string]interface{} {
	return laptopSchema()
}

func laptopListOutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"count":   map[string]interface{}{"type": "integer"},
			"laptops": map[string]interface{}{"type": "array", "items": laptopSchema()},
		},
		"required": []string{"count", "laptops"},
	}
}

func refreshOutputSchema() map[string]interface{} {
	return map[string]interface{}{
		"type":                 "object",
		"additionalProperties": false,
		"properties": map[string]interface{}{
			"count":  map[string]interface{}{"type": "integer"},
			"status": map[string]interface{}{"type": "string"},
		},
		"required": []string{"count", "status"},
	}
}
