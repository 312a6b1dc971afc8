package testutils

import (
	"time"

	"github.com/google/uuid"

	"github.com/papercomputeco/fnindex/pkg/function"
)

// FixedTime is the LastUpdated given to fixtures.
var FixedTime = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)

// NewTestFunction creates a minimal valid function with a fresh ID.
func NewTestFunction(name, description, category string, tags ...string) *function.Function {
	req := NewAddRequest(name, description, category, tags...)
	return req.NewFunction(uuid.NewString(), FixedTime)
}

// NewAddRequest creates an add request with one required string parameter.
func NewAddRequest(name, description, category string, tags ...string) function.AddRequest {
	return function.AddRequest{
		Name:        name,
		Description: description,
		Category:    category,
		Parameters: map[string]function.Parameter{
			"input": {Type: function.ParamString, Description: "input value", Required: true},
		},
		Tags: tags,
	}
}

// CalculateSumRequest is the Chinese-description arithmetic fixture used by
// the end-to-end search tests.
func CalculateSumRequest() function.AddRequest {
	return function.AddRequest{
		Name:        "calculate_sum",
		Description: "计算两个数字的和",
		Category:    "math",
		Parameters: map[string]function.Parameter{
			"a": {Type: function.ParamNumber, Description: "第一个数字", Required: true},
			"b": {Type: function.ParamNumber, Description: "第二个数字", Required: true},
		},
		UseCases: []string{"计算两个数字的和"},
		Tags:     []string{"math", "add"},
	}
}
