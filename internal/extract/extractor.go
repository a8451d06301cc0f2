// Package extract parses structured note termsheets into note drafts
// using an LLM.
package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	apperrors "notes-tracker/internal/errors"
	"notes-tracker/internal/models"
)

// LLMClient abstracts the completion API so tests can substitute a fake.
type LLMClient interface {
	CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// OpenAIClient implements LLMClient using the OpenAI API.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates a new OpenAI LLM client.
func NewOpenAIClient(apiKey string, model string) *OpenAIClient {
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}
}

// CompleteWithSystem sends a prompt with system message to the LLM.
func (c *OpenAIClient) CompleteWithSystem(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from openai")
	}
	return resp.Choices[0].Message.Content, nil
}

// noteDraft mirrors the JSON layout the extraction prompt requests.
type noteDraft struct {
	CustomerName       string  `json:"customer_name"`
	ProductType        string  `json:"type_of_structured_product"`
	NotionalAmount     float64 `json:"notional_amount"`
	ISIN               string  `json:"isin"`
	TradeDate          string  `json:"trade_date"`
	IssueDate          string  `json:"issue_date"`
	ObservationStart   string  `json:"observation_start_date"`
	FinalValuationDate string  `json:"final_valuation_date"`
	CouponDates        string  `json:"coupon_payment_dates"`
	CouponPerAnnum     float64 `json:"coupon_per_annum"`
	CouponBarrier      float64 `json:"coupon_barrier"`
	KOType             string  `json:"ko_type"`
	KIType             string  `json:"ki_type"`
	Underlyings        []struct {
		Ticker      string  `json:"ticker"`
		SpotPrice   float64 `json:"spot_price"`
		StrikePrice float64 `json:"strike_price"`
		KOPrice     float64 `json:"ko_price"`
		KIPrice     float64 `json:"ki_price"`
	} `json:"underlyings"`
}

const systemPrompt = `You are a financial analyst extracting data from structured note termsheets. Return only valid JSON.`

const promptTemplate = `Extract the following information and return ONLY a JSON object with these exact fields:

{
  "customer_name": "Client name if mentioned, otherwise 'Unknown'",
  "type_of_structured_product": "FCN or WOFCN or Phoenix or DCN or WOBEN or ACCU or DECU or TWINWIN",
  "notional_amount": amount as number,
  "isin": "ISIN code",
  "trade_date": "YYYY-MM-DD",
  "issue_date": "YYYY-MM-DD",
  "observation_start_date": "YYYY-MM-DD or trade_date",
  "final_valuation_date": "YYYY-MM-DD",
  "coupon_payment_dates": "comma-separated dates in YYYY-MM-DD format",
  "coupon_per_annum": decimal (e.g., 0.13 for 13%%),
  "coupon_barrier": price if Phoenix/WOBEN, null if FCN,
  "ko_type": "Daily or Period-End",
  "ki_type": "Daily or EKI",
  "underlyings": [
    {
      "ticker": "symbol",
      "spot_price": initial price,
      "strike_price": strike or put strike,
      "ko_price": KO barrier price,
      "ki_price": KI barrier price
    }
  ]
}

IMPORTANT:
- For Phoenix: strike_price = Put Strike level
- For WOBEN: strike_price = Strike for conversion
- For FCN: strike_price = same as spot_price usually
- All prices must be in dollars, not percentages
- Return ONLY valid JSON, no additional text

Termsheet text:
%s`

// maxTermsheetChars caps the termsheet text included in the prompt.
const maxTermsheetChars = 15000

// Extractor turns termsheet text into a note with underlyings.
type Extractor struct {
	client LLMClient
	log    zerolog.Logger
}

// NewExtractor creates a termsheet extractor.
func NewExtractor(client LLMClient, logger zerolog.Logger) *Extractor {
	return &Extractor{client: client, log: logger}
}

// ExtractNote sends the termsheet text to the LLM and parses the reply
// into a note draft.
func (e *Extractor) ExtractNote(ctx context.Context, termsheetText string) (*models.Note, []models.Underlying, error) {
	if strings.TrimSpace(termsheetText) == "" {
		return nil, nil, apperrors.NewExtractionError("input", "empty termsheet text", nil)
	}
	if len(termsheetText) > maxTermsheetChars {
		termsheetText = termsheetText[:maxTermsheetChars]
	}

	response, err := e.client.CompleteWithSystem(ctx, systemPrompt, fmt.Sprintf(promptTemplate, termsheetText))
	if err != nil {
		return nil, nil, apperrors.NewExtractionError("completion", "llm request failed", err)
	}

	draft, err := parseDraft(response)
	if err != nil {
		return nil, nil, err
	}

	note, underlyings, err := draft.toNote()
	if err != nil {
		return nil, nil, err
	}

	e.log.Info().
		Str("isin", note.ISIN).
		Str("product", string(note.Product)).
		Int("underlyings", len(underlyings)).
		Msg("Termsheet extracted")

	return note, underlyings, nil
}

// parseDraft extracts the JSON object from an LLM reply, tolerating
// code fences and surrounding prose.
func parseDraft(response string) (*noteDraft, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start < 0 || end <= start {
		return nil, apperrors.NewExtractionError("parse", "no JSON object in response", nil)
	}

	var draft noteDraft
	if err := json.Unmarshal([]byte(response[start:end+1]), &draft); err != nil {
		return nil, apperrors.NewExtractionError("parse", "invalid JSON in response", err)
	}
	return &draft, nil
}

func (d *noteDraft) toNote() (*models.Note, []models.Underlying, error) {
	if d.ISIN == "" {
		return nil, nil, apperrors.NewExtractionError("validate", "missing isin", nil)
	}
	if d.ProductType == "" {
		return nil, nil, apperrors.NewExtractionError("validate", "missing product type", nil)
	}
	if len(d.Underlyings) == 0 {
		return nil, nil, apperrors.NewExtractionError("validate", "no underlyings extracted", nil)
	}

	note := &models.Note{
		CustomerName:     d.CustomerName,
		ISIN:             d.ISIN,
		Product:          models.ProductType(d.ProductType),
		Notional:         d.NotionalAmount,
		TradeDate:        parseDraftDate(d.TradeDate),
		IssueDate:        parseDraftDate(d.IssueDate),
		ObservationStart: parseDraftDate(d.ObservationStart),
		FinalValuation:   parseDraftDate(d.FinalValuationDate),
		CouponRate:       d.CouponPerAnnum,
		CouponBarrier:    d.CouponBarrier,
		KOType:           models.KOType(d.KOType),
		KIType:           models.KIType(d.KIType),
		Status:           models.StatusNotYetObserved,
	}

	for _, part := range strings.Split(d.CouponDates, ",") {
		if t := parseDraftDate(strings.TrimSpace(part)); !t.IsZero() {
			note.CouponDates = append(note.CouponDates, t)
		}
	}

	if note.ObservationStart.IsZero() {
		note.ObservationStart = note.TradeDate
	}

	underlyings := make([]models.Underlying, 0, len(d.Underlyings))
	for i, u := range d.Underlyings {
		underlyings = append(underlyings, models.Underlying{
			Seq:         i + 1,
			Ticker:      u.Ticker,
			SpotPrice:   u.SpotPrice,
			StrikePrice: u.StrikePrice,
			KOPrice:     u.KOPrice,
			KIPrice:     u.KIPrice,
		})
	}

	return note, underlyings, nil
}

func parseDraftDate(s string) time.Time {
	if s == "" || s == "null" {
		return time.Time{}
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}
