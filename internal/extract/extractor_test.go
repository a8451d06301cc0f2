package extract

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	apperrors "notes-tracker/internal/errors"
	"notes-tracker/internal/models"
)

// fakeLLM returns a canned reply and records the prompts it was given.
type fakeLLM struct {
	reply      string
	err        error
	userPrompt string
}

func (f *fakeLLM) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	f.userPrompt = userPrompt
	return f.reply, f.err
}

const validDraftJSON = `{
	"customer_name": "Acme Capital",
	"type_of_structured_product": "Phoenix",
	"notional_amount": 2000000,
	"isin": "XS1234567890",
	"trade_date": "2025-01-10",
	"issue_date": "2025-01-17",
	"observation_start_date": "2025-01-10",
	"final_valuation_date": "2026-01-10",
	"coupon_payment_dates": "2025-04-10, 2025-07-10, 2025-10-10, 2026-01-10",
	"coupon_per_annum": 0.13,
	"coupon_barrier": 70,
	"ko_type": "Period-End",
	"ki_type": "Daily",
	"underlyings": [
		{"ticker": "AAPL", "spot_price": 180, "strike_price": 134.7, "ko_price": 180, "ki_price": 108},
		{"ticker": "MSFT", "spot_price": 400, "strike_price": 299.4, "ko_price": 400, "ki_price": 240}
	]
}`

func TestExtractNote(t *testing.T) {
	llm := &fakeLLM{reply: validDraftJSON}
	extractor := NewExtractor(llm, zerolog.Nop())

	note, underlyings, err := extractor.ExtractNote(context.Background(), "TERMSHEET: Phoenix note on AAPL and MSFT ...")
	if err != nil {
		t.Fatalf("ExtractNote failed: %v", err)
	}

	if note.ISIN != "XS1234567890" || note.Product != models.ProductPhoenix {
		t.Errorf("Identity fields mismatch: %+v", note)
	}
	if note.Notional != 2000000 || note.CouponRate != 0.13 || note.CouponBarrier != 70 {
		t.Errorf("Economics mismatch: %+v", note)
	}
	if note.KOType != models.KOPeriodEnd || note.KIType != models.KIDaily {
		t.Errorf("Barrier type mismatch: %s / %s", note.KOType, note.KIType)
	}
	if len(note.CouponDates) != 4 {
		t.Errorf("Expected 4 coupon dates, got %v", note.CouponDates)
	}
	if !note.TradeDate.Equal(time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("Trade date mismatch: %v", note.TradeDate)
	}
	if note.Status != models.StatusNotYetObserved {
		t.Errorf("New drafts must start Not Observed Yet, got %s", note.Status)
	}

	if len(underlyings) != 2 {
		t.Fatalf("Expected 2 underlyings, got %d", len(underlyings))
	}
	if underlyings[0].Seq != 1 || underlyings[1].Seq != 2 {
		t.Errorf("Seq numbering broken: %+v", underlyings)
	}
	if underlyings[1].Ticker != "MSFT" || underlyings[1].KIPrice != 240 {
		t.Errorf("Underlying fields mismatch: %+v", underlyings[1])
	}

	if llm.userPrompt == "" {
		t.Error("Termsheet text never reached the LLM")
	}
}

func TestExtractNoteCodeFencedReply(t *testing.T) {
	llm := &fakeLLM{reply: "Sure, here is the extracted data:\n```json\n" + validDraftJSON + "\n```\nLet me know if you need more."}
	extractor := NewExtractor(llm, zerolog.Nop())

	note, _, err := extractor.ExtractNote(context.Background(), "termsheet text")
	if err != nil {
		t.Fatalf("Expected fenced JSON to parse, got %v", err)
	}
	if note.ISIN != "XS1234567890" {
		t.Errorf("ISIN mismatch: %s", note.ISIN)
	}
}

func TestExtractNoteEmptyInput(t *testing.T) {
	extractor := NewExtractor(&fakeLLM{reply: validDraftJSON}, zerolog.Nop())

	_, _, err := extractor.ExtractNote(context.Background(), "   \n ")
	if err == nil {
		t.Fatal("Expected error for empty termsheet")
	}
	var exErr *apperrors.ExtractionError
	if !errors.As(err, &exErr) || exErr.Stage != "input" {
		t.Errorf("Expected input-stage ExtractionError, got %v", err)
	}
}

func TestExtractNoteLLMFailure(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection reset")}
	extractor := NewExtractor(llm, zerolog.Nop())

	_, _, err := extractor.ExtractNote(context.Background(), "termsheet text")
	var exErr *apperrors.ExtractionError
	if !errors.As(err, &exErr) || exErr.Stage != "completion" {
		t.Errorf("Expected completion-stage ExtractionError, got %v", err)
	}
}

func TestExtractNoteNoJSON(t *testing.T) {
	llm := &fakeLLM{reply: "I could not find any structured note details in this document."}
	extractor := NewExtractor(llm, zerolog.Nop())

	_, _, err := extractor.ExtractNote(context.Background(), "termsheet text")
	var exErr *apperrors.ExtractionError
	if !errors.As(err, &exErr) || exErr.Stage != "parse" {
		t.Errorf("Expected parse-stage ExtractionError, got %v", err)
	}
}

func TestExtractNoteValidation(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"MissingISIN", `{"type_of_structured_product": "FCN", "underlyings": [{"ticker": "AAPL"}]}`},
		{"MissingProduct", `{"isin": "XS1", "underlyings": [{"ticker": "AAPL"}]}`},
		{"NoUnderlyings", `{"isin": "XS1", "type_of_structured_product": "FCN", "underlyings": []}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			extractor := NewExtractor(&fakeLLM{reply: tt.reply}, zerolog.Nop())
			_, _, err := extractor.ExtractNote(context.Background(), "termsheet text")
			var exErr *apperrors.ExtractionError
			if !errors.As(err, &exErr) || exErr.Stage != "validate" {
				t.Errorf("Expected validate-stage ExtractionError, got %v", err)
			}
		})
	}
}

func TestExtractNoteObservationStartFallback(t *testing.T) {
	reply := `{
		"isin": "XS1",
		"type_of_structured_product": "FCN",
		"trade_date": "2025-01-10",
		"final_valuation_date": "2026-01-10",
		"underlyings": [{"ticker": "AAPL", "spot_price": 180}]
	}`
	extractor := NewExtractor(&fakeLLM{reply: reply}, zerolog.Nop())

	note, _, err := extractor.ExtractNote(context.Background(), "termsheet text")
	if err != nil {
		t.Fatalf("ExtractNote failed: %v", err)
	}
	if !note.ObservationStart.Equal(note.TradeDate) {
		t.Errorf("Observation start should default to trade date, got %v", note.ObservationStart)
	}
}
