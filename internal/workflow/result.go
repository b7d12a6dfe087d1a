package workflow

import (
	"fmt"
	"strings"
	"time"

	"github.com/platinummonkey/pastemark/internal/converter"
)

// Operation names the workflow entry point that produced a result
type Operation string

const (
	OperationPaste     Operation = "paste"
	OperationOCR       Operation = "ocr"
	OperationSummarize Operation = "summarize"
)

// ItemResult is the outcome of one image in a multi-image operation
type ItemResult struct {
	Index int

	// Text is the Markdown returned by the vendor (OCR only)
	Text string

	// Embed is the editor embed for the saved image, empty when no image was saved
	Embed string

	Saved    converter.SaveResult
	Format   string
	Fallback bool
	Duration time.Duration
	Err      error
}

// OK reports whether the item completed without error
func (r ItemResult) OK() bool {
	return r.Err == nil
}

// Markdown returns what an editor inserts for this item
func (r ItemResult) Markdown() string {
	var parts []string
	if r.Embed != "" {
		parts = append(parts, r.Embed)
	}
	if r.Text != "" {
		parts = append(parts, r.Text)
	}
	return strings.Join(parts, "\n\n")
}

// Result contains the outcome of a multi-image operation. Items keep input order.
type Result struct {
	Operation    Operation
	Model        string
	Items        []ItemResult
	SuccessCount int
	FailureCount int
	Duration     time.Duration
}

// NewResult creates a result with one slot per input image
func NewResult(op Operation, n int) *Result {
	items := make([]ItemResult, n)
	for i := range items {
		items[i].Index = i
	}
	return &Result{Operation: op, Items: items}
}

// tally counts outcomes once every item has reported
func (r *Result) tally() {
	r.SuccessCount, r.FailureCount = 0, 0
	for _, item := range r.Items {
		if item.OK() {
			r.SuccessCount++
		} else {
			r.FailureCount++
		}
	}
}

// HasFailures returns true if any item failed
func (r *Result) HasFailures() bool {
	return r.FailureCount > 0
}

// Err returns the first item error, or nil
func (r *Result) Err() error {
	for _, item := range r.Items {
		if item.Err != nil {
			return item.Err
		}
	}
	return nil
}

// Markdown joins the successful items for insertion into a note
func (r *Result) Markdown() string {
	var parts []string
	for _, item := range r.Items {
		if item.OK() {
			if md := item.Markdown(); md != "" {
				parts = append(parts, md)
			}
		}
	}
	return strings.Join(parts, "\n\n")
}

// Summary returns a human-readable summary of the result
func (r *Result) Summary() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s summary:\n", r.Operation)
	if r.Model != "" {
		fmt.Fprintf(&sb, "  Model: %s\n", r.Model)
	}
	fmt.Fprintf(&sb, "  Images: %d\n", len(r.Items))
	fmt.Fprintf(&sb, "  Successful: %d\n", r.SuccessCount)
	fmt.Fprintf(&sb, "  Failed: %d\n", r.FailureCount)
	fmt.Fprintf(&sb, "  Duration: %v\n", r.Duration)

	if r.HasFailures() {
		sb.WriteString("\nFailures:\n")
		for _, item := range r.Items {
			if item.Err != nil {
				fmt.Fprintf(&sb, "  - image %d: %v\n", item.Index+1, item.Err)
			}
		}
	}

	return sb.String()
}

// String returns a string representation of the result
func (r *Result) String() string {
	return r.Summary()
}
