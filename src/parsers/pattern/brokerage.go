package pattern

import (
	"encoding/csv"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/utils"
)

var errNoTable = errors.New("no 1099-B transaction table found")

type column int

const (
	colDescription column = iota
	colAcquired
	colSold
	colProceeds
	colBasis
	colGain
	colWash
	colTerm
	colReported
)

// Header cells are matched in this order; the first keyword hit claims the
// column, so "wash sale loss disallowed" never becomes the gain column.
var headerKeywords = []struct {
	col      column
	keywords []string
}{
	{colWash, []string{"wash"}},
	{colAcquired, []string{"acquired", "purchase date", "open date"}},
	{colSold, []string{"sold", "disposed", "sale date", "close date"}},
	{colProceeds, []string{"proceeds"}},
	{colBasis, []string{"cost", "basis"}},
	{colReported, []string{"reported", "covered"}},
	{colTerm, []string{"term", "holding"}},
	{colGain, []string{"gain", "loss"}},
	{colDescription, []string{"description", "security", "property", "symbol", "name"}},
}

var (
	tableDelimiters = []rune{'\t', '|', ','}
	amountRe        = regexp.MustCompile(amountPattern)
	amountHeadRe    = regexp.MustCompile(`^\(?-?\$?\s?\d{1,3}(?:,\d{3})*$`)
	amountTailRe    = regexp.MustCompile(`^\d{3}(?:\.\d{2})?\)?-?$`)
	bFederalWH      = newAmountRule(0, `federal\s+income\s+tax\s+withheld`)
)

type brokerTable struct {
	columns  map[column]int
	width    int
	records  [][]string
	term     string // section heading above the table: "short", "long" or ""
	reported *bool
}

func extract1099B(raw string) (models.ExtractionResult, error) {
	raw = glyphFolder.Replace(strings.ReplaceAll(raw, "\r\n", "\n"))
	lines := strings.Split(raw, "\n")

	tables, err := findTables(lines)
	if err != nil {
		return models.ExtractionResult{}, err
	}

	f := &models.Form1099BFields{}
	complete, total := 0, 0
	for _, t := range tables {
		for _, rec := range t.records {
			e, ok := t.entry(rec)
			if e == nil {
				continue
			}
			total++
			if ok {
				complete++
			}
			f.Entries = append(f.Entries, *e)
		}
	}
	if total == 0 {
		return models.ExtractionResult{}, errNoTable
	}

	text := normalizeLines(raw)
	var w weighted
	f.PayerName, f.PayerTIN = payer(text, &w)
	bFederalWH.apply(text, &w, &f.FederalWithheld)
	f.ShortTermSubtotal, f.LongTermSubtotal = subtotals(lines)

	confidence := 0.9*float64(complete)/float64(total) + 0.1*w.confidence()
	return models.ExtractionResult{
		Fields:     models.ExtractedFields{DocumentType: models.DocType1099B, B: f},
		Confidence: confidence,
	}, nil
}

// findTables locates every delimited table whose header names both a
// proceeds and a basis column, remembering the section heading above it.
func findTables(lines []string) ([]brokerTable, error) {
	var (
		tables   []brokerTable
		term     string
		reported *bool
	)
	for i := 0; i < len(lines); i++ {
		lower := strings.ToLower(lines[i])
		if t := headingTerm(lower); t != "" && !strings.Contains(lower, "total") {
			term = t
			reported = reportedOf(lower)
		}

		delim, header, ok := parseHeader(lines[i])
		if !ok {
			continue
		}
		j := i + 1
		for j < len(lines) && strings.TrimSpace(lines[j]) != "" && strings.ContainsRune(lines[j], delim) {
			j++
		}
		reader := csv.NewReader(strings.NewReader(strings.Join(lines[i+1:j], "\n")))
		reader.Comma = delim
		reader.FieldsPerRecord = -1
		reader.LazyQuotes = true
		reader.TrimLeadingSpace = true
		records, err := reader.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to read 1099-B table at line %d: %w", i+1, err)
		}
		if delim == ',' {
			for k, rec := range records {
				records[k] = rejoinAmounts(rec, len(header))
			}
		}
		tables = append(tables, brokerTable{
			columns:  detectColumns(header),
			width:    len(header),
			records:  records,
			term:     term,
			reported: reported,
		})
		i = j - 1
	}
	if len(tables) == 0 {
		return nil, errNoTable
	}
	return tables, nil
}

// rejoinAmounts undoes splits at the thousands separator of unquoted
// amounts such as $1,234.56 while the record is wider than the header.
func rejoinAmounts(rec []string, width int) []string {
	extra := len(rec) - width
	if extra <= 0 {
		return rec
	}
	out := make([]string, 0, len(rec))
	for _, cell := range rec {
		n := len(out)
		if extra > 0 && n > 0 && amountHeadRe.MatchString(strings.TrimSpace(out[n-1])) && amountTailRe.MatchString(strings.TrimSpace(cell)) {
			out[n-1] = strings.TrimSpace(out[n-1]) + "," + strings.TrimSpace(cell)
			extra--
			continue
		}
		out = append(out, cell)
	}
	return out
}

func parseHeader(line string) (rune, []string, bool) {
	lower := strings.ToLower(line)
	if !strings.Contains(lower, "proceeds") || !(strings.Contains(lower, "cost") || strings.Contains(lower, "basis")) {
		return 0, nil, false
	}
	for _, d := range tableDelimiters {
		if !strings.ContainsRune(line, d) {
			continue
		}
		r := csv.NewReader(strings.NewReader(line))
		r.Comma = d
		r.LazyQuotes = true
		r.TrimLeadingSpace = true
		header, err := r.Read()
		if err != nil || len(header) < 3 {
			continue
		}
		cols := detectColumns(header)
		_, hasProceeds := cols[colProceeds]
		_, hasBasis := cols[colBasis]
		if hasProceeds && hasBasis {
			return d, header, true
		}
	}
	return 0, nil, false
}

func detectColumns(header []string) map[column]int {
	cols := make(map[column]int)
	for idx, cell := range header {
		cell = strings.ToLower(strings.TrimSpace(cell))
	next:
		for _, hk := range headerKeywords {
			if _, taken := cols[hk.col]; taken {
				continue
			}
			for _, kw := range hk.keywords {
				if strings.Contains(cell, kw) {
					cols[hk.col] = idx
					break next
				}
			}
		}
	}
	return cols
}

// entry converts one record. It returns nil for blank and total rows; ok is
// false when the row lacks an amount, the sale date or the holding period,
// or when its width does not match the header.
func (t brokerTable) entry(rec []string) (*models.Form1099BEntryFields, bool) {
	cell := func(c column) string {
		idx, present := t.columns[c]
		if !present || idx >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[idx])
	}
	if strings.TrimSpace(strings.Join(rec, "")) == "" {
		return nil, false
	}
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(rec[0])), "total") {
		return nil, false
	}

	e := &models.Form1099BEntryFields{
		Description:  cell(colDescription),
		DateAcquired: utils.NormalizeDate(cell(colAcquired)),
		DateSold:     utils.NormalizeDate(cell(colSold)),
	}
	ok := e.DateSold != "" && len(rec) == t.width

	var err error
	if e.Proceeds, err = utils.ParseNullableAmount(cell(colProceeds)); err != nil {
		e.Proceeds = decimal.NullDecimal{}
	}
	if e.CostBasis, err = utils.ParseNullableAmount(cell(colBasis)); err != nil {
		e.CostBasis = decimal.NullDecimal{}
	}
	ok = ok && e.Proceeds.Valid && e.CostBasis.Valid

	if wash := cell(colWash); wash != "" {
		if amt, err := utils.ParseAmount(wash); err == nil {
			e.WashSaleAmount = amt.Abs()
			e.WashSale = !amt.IsZero()
		} else {
			e.WashSale = isYes(wash)
		}
	}

	term := termOf(strings.ToLower(cell(colTerm)))
	if term == "" {
		if short, known := utils.IsShortTermHolding(e.DateAcquired, e.DateSold); known && short {
			term = "short"
		} else if known {
			term = "long"
		}
	}
	if term == "" {
		term = t.term
	}
	e.IsShortTerm = term == "short"
	ok = ok && term != ""

	e.ReportedToIRS = true
	if rep := cell(colReported); rep != "" {
		e.ReportedToIRS = isReported(rep)
	} else if t.reported != nil {
		e.ReportedToIRS = *t.reported
	}

	if g, err := utils.ParseAmount(cell(colGain)); err == nil {
		e.GainLoss = g
	} else if e.Proceeds.Valid && e.CostBasis.Valid {
		e.GainLoss = e.Proceeds.Decimal.Sub(e.CostBasis.Decimal).Add(e.WashSaleAmount)
	}
	return e, ok
}

// subtotals sums every "total short-term" / "total long-term" line, taking
// the last amount on the line as the gain or loss.
func subtotals(lines []string) (short, long decimal.NullDecimal) {
	for _, l := range lines {
		lower := strings.ToLower(l)
		if !strings.Contains(lower, "total") {
			continue
		}
		term := headingTerm(lower)
		if term == "" {
			continue
		}
		amounts := amountRe.FindAllString(l, -1)
		if len(amounts) == 0 {
			continue
		}
		v, err := utils.ParseAmount(amounts[len(amounts)-1])
		if err != nil {
			continue
		}
		if term == "short" {
			short = decimal.NewNullDecimal(utils.NullOrZero(short).Add(v))
		} else {
			long = decimal.NewNullDecimal(utils.NullOrZero(long).Add(v))
		}
	}
	return short, long
}

func headingTerm(lower string) string {
	switch {
	case strings.Contains(lower, "short-term"), strings.Contains(lower, "short term"):
		return "short"
	case strings.Contains(lower, "long-term"), strings.Contains(lower, "long term"):
		return "long"
	}
	return ""
}

func termOf(lower string) string {
	switch {
	case strings.Contains(lower, "short"):
		return "short"
	case strings.Contains(lower, "long"):
		return "long"
	case lower == "st":
		return "short"
	case lower == "lt":
		return "long"
	}
	return ""
}

func reportedOf(heading string) *bool {
	var v bool
	switch {
	case strings.Contains(heading, "noncovered"), strings.Contains(heading, "not reported"),
		strings.Contains(heading, "box b"), strings.Contains(heading, "box e"):
		v = false
	case strings.Contains(heading, "covered"), strings.Contains(heading, "reported"),
		strings.Contains(heading, "box a"), strings.Contains(heading, "box d"):
		v = true
	default:
		return nil
	}
	return &v
}

func isReported(cell string) bool {
	c := strings.ToLower(cell)
	if strings.Contains(c, "noncovered") || strings.Contains(c, "not") {
		return false
	}
	return isYes(c) || strings.Contains(c, "covered") || strings.Contains(c, "reported")
}

func isYes(cell string) bool {
	switch strings.ToLower(strings.TrimSpace(cell)) {
	case "y", "yes", "true", "x", "w", "1":
		return true
	}
	return false
}
