package vision

import (
	"fmt"
	"strings"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/session"
)

// receiptPromptBase is the shared extraction prompt for single receipts.
const receiptPromptBase = `You are analyzing a retail receipt ("boleta") or invoice. Carefully read all text in the image and extract the following information:

1. **Merchant**: the store or business name, usually the largest text near the top of the receipt.
2. **Date**: the transaction date, converted to ISO 8601 format (YYYY-MM-DD). Chilean receipts usually print DD/MM/YYYY.
3. **Total**: the final amount paid. Look for "TOTAL", "TOTAL A PAGAR" or "MONTO". Extract only the numeric value.
4. **Currency**: the ISO 4217 code for the amounts (CLP for Chilean pesos, USD, EUR).
5. **Category**: the best fit among: Groceries, Dining, Transport, Health, Home, Entertainment, Services, Other.
6. **Store type**: a short lowercase description such as "supermarket", "pharmacy", "gas station", "restaurant".
7. **Items**: the individual line items with name, quantity and unit price, when readable.
8. **Confidence**: how confident you are in the extraction overall, from 0.0 to 1.0.

Return ONLY valid JSON in this exact format:
{
  "merchant": "Store Name",
  "date": "YYYY-MM-DD",
  "total": 0,
  "currency": "CLP",
  "category": "Groceries",
  "store_type": "supermarket",
  "items": [{"name": "item name", "quantity": 1, "price": 0}],
  "confidence": 0.0
}

Important:
- The total and prices must be numbers, not strings.
- Chilean peso amounts have no decimals; never rescale them.
- If you cannot read a field, use null or omit it.
- Do not include any text before or after the JSON.
- Do not use markdown code blocks.`

// statementPromptBase is the extraction prompt for photographed or exported
// card statements.
const statementPromptBase = `You are analyzing a bank or credit card statement. Extract every purchase transaction you can read from the image.

Return ONLY valid JSON in this exact format:
{
  "transactions": [
    {"merchant": "Store Name", "date": "YYYY-MM-DD", "total": 0, "currency": "CLP", "category": "Groceries"}
  ]
}

Important:
- One entry per purchase row. Skip payments, interest, fees and reversals.
- Dates must be ISO 8601 (YYYY-MM-DD); statements usually print DD/MM.
- Totals must be numbers, not strings, and positive for purchases.
- Categories must be one of: Groceries, Dining, Transport, Health, Home, Entertainment, Services, Other.
- If no transactions are readable, return {"transactions": []}.
- Do not include any text before or after the JSON.
- Do not use markdown code blocks.`

func receiptPrompt(hints session.Hints) string {
	return withHints(receiptPromptBase, hints)
}

func statementPrompt(hints session.Hints) string {
	return withHints(statementPromptBase, hints)
}

func withHints(base string, hints session.Hints) string {
	if hints.StoreType == "" && hints.Currency == "" {
		return base
	}

	var b strings.Builder
	b.WriteString(base)
	b.WriteString("\n\nContext from the user:")
	if hints.StoreType != "" {
		fmt.Fprintf(&b, "\n- This purchase was at a %s.", hints.StoreType)
	}
	if hints.Currency != "" {
		fmt.Fprintf(&b, "\n- Amounts are most likely in %s.", hints.Currency)
	}
	return b.String()
}
