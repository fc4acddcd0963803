// Package statement turns bank and card statement files into transaction
// drafts. OFX/QFX files are parsed locally; connected accounts go through
// the Plaid client.
package statement

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/aclindsa/ofxgo"

	"github.com/Brownbull/gmni-boletapp-sub000/internal/common"
	"github.com/Brownbull/gmni-boletapp-sub000/internal/model"
)

// Parser implements OFX/QFX statement parsing.
type Parser struct {
	defaultCurrency string
}

// NewParser creates a parser. defaultCurrency is used when a statement does
// not declare one.
func NewParser(defaultCurrency string) *Parser {
	if defaultCurrency == "" {
		defaultCurrency = "CLP"
	}
	return &Parser{defaultCurrency: strings.ToUpper(defaultCurrency)}
}

// Parse reads an OFX/QFX file and returns the purchases it contains as
// drafts. Deposits, payments and other credits are skipped.
func (p *Parser) Parse(ctx context.Context, path string) ([]model.TransactionDraft, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".ofx" && ext != ".qfx" {
		return nil, fmt.Errorf("%w: %s", common.ErrUnsupportedStatement, ext)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open statement: %w", err)
	}
	defer func() { _ = f.Close() }()

	return p.ParseReader(ctx, f)
}

// ParseReader parses OFX content from a reader.
func (p *Parser) ParseReader(_ context.Context, reader io.Reader) ([]model.TransactionDraft, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read statement: %w", err)
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrUnsupportedStatement, err)
	}

	var drafts []model.TransactionDraft
	var skipped int

	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		currency := p.statementCurrency(stmt.CurDef.String())
		for _, tx := range stmt.BankTranList.Transactions {
			if draft, ok := p.convertTransaction(tx, currency); ok {
				drafts = append(drafts, draft)
			} else {
				skipped++
			}
		}
	}

	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		currency := p.statementCurrency(stmt.CurDef.String())
		for _, tx := range stmt.BankTranList.Transactions {
			if draft, ok := p.convertTransaction(tx, currency); ok {
				drafts = append(drafts, draft)
			} else {
				skipped++
			}
		}
	}

	slog.Info("Parsed statement",
		"purchases", len(drafts),
		"skipped_credits", skipped)

	return drafts, nil
}

// preprocessOFX fixes the formatting problems real-world exports ship with:
// leading blank lines, mixed-case severities, and SGML tags missing their
// closing bracket.
func preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")

	severityRegex := regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)

	tagFixRegex := regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
	content = tagFixRegex.ReplaceAllString(content, "$1>")

	return content
}

func (p *Parser) statementCurrency(cur string) string {
	cur = strings.ToUpper(strings.TrimSpace(cur))
	// "XXX" is the zero value of an unset currency unit.
	if cur == "" || cur == "XXX" {
		return p.defaultCurrency
	}
	return cur
}

// convertTransaction maps one OFX row to a draft. Returns false for rows
// that are not purchases: deposits, payments received, interest.
func (p *Parser) convertTransaction(tx ofxgo.Transaction, currency string) (model.TransactionDraft, bool) {
	amount, _ := tx.TrnAmt.Float64()
	// OFX posts debits as negative amounts.
	if amount >= 0 {
		return model.TransactionDraft{}, false
	}

	merchant := extractMerchantName(tx)
	draft := model.TransactionDraft{
		Date:               tx.DtPosted.Time,
		Merchant:           merchant,
		NormalizedMerchant: model.NormalizeMerchant(merchant),
		Category:           categoryForType(fmt.Sprintf("%v", tx.TrnType)),
		Currency:           currency,
		Source:             model.SourceStatement,
		Total:              -amount,
		Confidence:         1.0,
	}
	if tx.Memo != "" && string(tx.Memo) != merchant {
		draft.Notes = strings.TrimSpace(string(tx.Memo))
	}
	return draft, true
}

// categoryForType infers a category from the OFX transaction type where the
// type is unambiguous. Everything else is left for enrichment and review.
func categoryForType(trnType string) string {
	switch trnType {
	case "FEE", "SRVCHG":
		return "Services"
	default:
		return ""
	}
}

// extractMerchantName gets the cleanest merchant string an OFX row offers.
func extractMerchantName(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return string(tx.Payee.Name)
	}

	name := string(tx.Name)
	if tx.Memo != "" && isGenericDescription(name) {
		name = string(tx.Memo)
	}
	name = strings.TrimSpace(name)

	prefixes := []string{
		"POS PURCHASE ",
		"PURCHASE AUTHORIZED ON ",
		"DEBIT CARD PURCHASE ",
		"ACH DEBIT ",
		"CHECK CARD ",
		"VISA PURCHASE ",
		"MC PURCHASE ",
		"DEBIT PURCHASE ",
		"COMPRA NACIONAL ",
		"COMPRA INTERNACIONAL ",
	}
	upper := strings.ToUpper(name)
	for _, prefix := range prefixes {
		if strings.HasPrefix(upper, prefix) {
			name = name[len(prefix):]
			break
		}
	}

	// Strip a leading MM/DD date stamp.
	if len(name) > 5 && name[2] == '/' && name[5] == ' ' {
		name = strings.TrimSpace(name[6:])
	}

	return name
}

func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "POS TRANSACTION", "CARD PURCHASE":
		return true
	}
	return false
}

// Hash fingerprints a statement file for import dedupe.
func (p *Parser) Hash(path string) (string, error) {
	return HashFile(path)
}

// HashFile returns the SHA-256 of a statement file, used to detect
// re-imports.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open statement: %w", err)
	}
	defer func() { _ = f.Close() }()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash statement: %w", err)
	}
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
