package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"bookkeeper/internal/core"

	"github.com/invopop/jsonschema"
	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
	"github.com/openai/openai-go/responses"
	"github.com/openai/openai-go/shared"
	"github.com/openai/openai-go/shared/constant"
	"github.com/shopspring/decimal"
)

// ErrUnreadable marks a scan that reached the model but produced no usable
// receipt: empty input, an empty or malformed reply, or a draft that fails
// validation. Errors reaching the model are returned without it.
var ErrUnreadable = errors.New("receipt could not be read")

// ReceiptDraft is what the model extracts from a receipt. Amounts are exact
// strings so no float rounding sneaks in between the model and the ledger.
type ReceiptDraft struct {
	VendorName           string  `json:"vendor_name" jsonschema_description:"Seller name as printed"`
	VendorTRN            string  `json:"vendor_trn" jsonschema_description:"15 digit UAE tax registration number, empty if not printed"`
	ReceiptDate          string  `json:"receipt_date" jsonschema_description:"Date in YYYY-MM-DD"`
	Currency             string  `json:"currency" jsonschema_description:"ISO 4217 code, e.g. AED"`
	NetAmount            string  `json:"net_amount" jsonschema_description:"Amount before VAT, e.g. \"100.00\""`
	VATAmount            string  `json:"vat_amount" jsonschema_description:"VAT charged, \"0.00\" if none"`
	TotalAmount          string  `json:"total_amount" jsonschema_description:"Amount paid including VAT"`
	VATCategory          string  `json:"vat_category" jsonschema:"enum=standard,enum=zero_rated,enum=exempt"`
	SuggestedAccountCode string  `json:"suggested_account_code" jsonschema_description:"Expense account code from the chart"`
	Confidence           float64 `json:"confidence" jsonschema_description:"0.0 to 1.0"`
}

// Normalize trims fields and fills blanks the model is allowed to leave out.
func (d *ReceiptDraft) Normalize() {
	d.VendorName = strings.TrimSpace(d.VendorName)
	d.VendorTRN = strings.ReplaceAll(strings.TrimSpace(d.VendorTRN), " ", "")
	d.ReceiptDate = strings.TrimSpace(d.ReceiptDate)
	d.Currency = strings.ToUpper(strings.TrimSpace(d.Currency))
	if d.Currency == "" {
		d.Currency = "AED"
	}
	d.VATCategory = strings.ToLower(strings.TrimSpace(d.VATCategory))
	if d.VATCategory == "" {
		d.VATCategory = string(core.VATStandard)
	}
	d.SuggestedAccountCode = strings.TrimSpace(d.SuggestedAccountCode)
	for _, a := range []*string{&d.NetAmount, &d.VATAmount, &d.TotalAmount} {
		*a = strings.ReplaceAll(strings.TrimSpace(*a), ",", "")
		if *a == "" {
			*a = "0"
		}
	}
}

// amounts parses the three amounts of a normalized draft.
func (d *ReceiptDraft) amounts() (net, vat, total decimal.Decimal, err error) {
	if net, err = decimal.NewFromString(d.NetAmount); err != nil {
		return net, vat, total, fmt.Errorf("net amount %q is not a number", d.NetAmount)
	}
	if vat, err = decimal.NewFromString(d.VATAmount); err != nil {
		return net, vat, total, fmt.Errorf("VAT amount %q is not a number", d.VATAmount)
	}
	if total, err = decimal.NewFromString(d.TotalAmount); err != nil {
		return net, vat, total, fmt.Errorf("total amount %q is not a number", d.TotalAmount)
	}
	return net, vat, total, nil
}

// Validate checks a normalized draft before it is saved.
func (d *ReceiptDraft) Validate() error {
	if d.VendorName == "" {
		return fmt.Errorf("vendor name is missing")
	}
	if _, err := time.Parse("2006-01-02", d.ReceiptDate); err != nil {
		return fmt.Errorf("receipt date %q must be YYYY-MM-DD", d.ReceiptDate)
	}
	if !core.VATCategory(d.VATCategory).Valid() {
		return fmt.Errorf("unknown VAT category %q", d.VATCategory)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return fmt.Errorf("confidence %v is outside 0..1", d.Confidence)
	}
	net, vat, total, err := d.amounts()
	if err != nil {
		return err
	}
	if net.IsNegative() || vat.IsNegative() || total.IsNegative() {
		return fmt.Errorf("amounts cannot be negative")
	}
	if !total.IsPositive() {
		return fmt.Errorf("total amount must be positive")
	}
	if net.Add(vat).Sub(total).Abs().GreaterThanOrEqual(core.BalanceTolerance) {
		return fmt.Errorf("net %s + VAT %s does not add up to total %s",
			net.StringFixed(2), vat.StringFixed(2), total.StringFixed(2))
	}
	return nil
}

// ToReceiptInput converts a validated draft. fallbackAccount is used when the
// model did not suggest an account.
func (d *ReceiptDraft) ToReceiptInput(fallbackAccount string) (core.ReceiptInput, error) {
	net, vat, total, err := d.amounts()
	if err != nil {
		return core.ReceiptInput{}, err
	}
	account := d.SuggestedAccountCode
	if account == "" {
		account = fallbackAccount
	}
	return core.ReceiptInput{
		VendorName:         d.VendorName,
		VendorTRN:          d.VendorTRN,
		ReceiptDate:        d.ReceiptDate,
		ExpenseAccountCode: account,
		VATCategory:        core.VATCategory(d.VATCategory),
		NetAmount:          net,
		VATAmount:          &vat,
		TotalAmount:        total,
		Currency:           d.Currency,
		Notes:              fmt.Sprintf("Scanned receipt (confidence %.2f)", d.Confidence),
		Source:             core.ReceiptScan,
	}, nil
}

// completer sends one prompt and returns the model's JSON text matching schema.
type completer interface {
	complete(ctx context.Context, prompt string, schema map[string]any) (string, error)
}

type openAICompleter struct {
	client *openai.Client
	model  string
}

func (c *openAICompleter) complete(ctx context.Context, prompt string, schema map[string]any) (string, error) {
	params := responses.ResponseNewParams{
		Model: shared.ResponsesModel(c.model),
		Input: responses.ResponseNewParamsInputUnion{
			OfString: param.NewOpt(prompt),
		},
		Text: responses.ResponseTextConfigParam{
			Format: responses.ResponseFormatTextConfigUnionParam{
				OfJSONSchema: &responses.ResponseFormatTextJSONSchemaConfigParam{
					Type:        constant.JSONSchema("json_schema"),
					Name:        "receipt_draft",
					Strict:      param.NewOpt(true),
					Schema:      schema,
					Description: param.NewOpt("Fields extracted from a purchase receipt"),
				},
			},
		},
	}

	resp, err := c.client.Responses.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("openai responses error: %w", err)
	}
	return resp.OutputText(), nil
}

// ReceiptScanner turns receipt text (OCR output or a pasted receipt) into a draft.
type ReceiptScanner struct {
	llm completer
}

func NewReceiptScanner(apiKey, model string) *ReceiptScanner {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	if model == "" {
		model = string(shared.ChatModelGPT4o)
	}
	return &ReceiptScanner{llm: &openAICompleter{client: &client, model: model}}
}

func buildPrompt(receiptText string, accounts []core.Account) string {
	var chart strings.Builder
	for _, a := range accounts {
		if a.Type == core.Expense || a.Type == core.Asset {
			fmt.Fprintf(&chart, "%s %s (%s)\n", a.Code, a.NameEN, a.Type)
		}
	}
	return fmt.Sprintf(`You are a UAE bookkeeper reading a purchase receipt.
Extract the fields of the receipt.
Rules:
1. Amounts must be exact strings with two decimals (e.g. "105.00").
2. net_amount + vat_amount must equal total_amount.
3. UAE standard VAT is 5%%; use zero_rated or exempt only when the receipt says so.
4. suggested_account_code must be one of the accounts below.
5. Dates are YYYY-MM-DD.

Accounts:
%s
Receipt:
%s`, chart.String(), receiptText)
}

// Scan extracts, normalizes and validates a receipt draft.
func (s *ReceiptScanner) Scan(ctx context.Context, receiptText string, accounts []core.Account) (*ReceiptDraft, error) {
	if strings.TrimSpace(receiptText) == "" {
		return nil, fmt.Errorf("%w: receipt text is empty", ErrUnreadable)
	}
	schemaMap, err := schemaFor(ReceiptDraft{})
	if err != nil {
		return nil, err
	}

	content, err := s.llm.complete(ctx, buildPrompt(receiptText, accounts), schemaMap)
	if err != nil {
		return nil, err
	}
	if content == "" {
		return nil, fmt.Errorf("%w: empty response content", ErrUnreadable)
	}

	var draft ReceiptDraft
	if err := json.Unmarshal([]byte(content), &draft); err != nil {
		return nil, fmt.Errorf("%w: failed to parse completion: %v", ErrUnreadable, err)
	}
	draft.Normalize()
	if err := draft.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return &draft, nil
}

// schemaFor reflects v into the map form the Responses API expects.
func schemaFor(v any) (map[string]any, error) {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	schemaJSON, err := json.Marshal(reflector.Reflect(v))
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}
	var schemaMap map[string]any
	if err := json.Unmarshal(schemaJSON, &schemaMap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schema to map: %w", err)
	}
	return schemaMap, nil
}
