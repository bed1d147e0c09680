package pattern

import (
	"regexp"

	"github.com/username/taxcore/src/models"
	"github.com/username/taxcore/src/utils"
)

var (
	w2Wages          = newAmountRule(2, `wages,?\s*tips,?\s*other\s+comp(?:ensation)?`).asRequired()
	w2FederalWH      = newAmountRule(2, `federal\s+income\s+tax\s+withheld`)
	w2SSWages        = newAmountRule(1, `social\s+security\s+wages`)
	w2SSWithheld     = newAmountRule(1, `social\s+security\s+tax\s+withheld`)
	w2MedicareWages  = newAmountRule(1, `medicare\s+wages\s+and\s+tips`)
	w2MedicareWH     = newAmountRule(1, `medicare\s+tax\s+withheld`)
	w2StateWages     = newAmountRule(0, `state\s+wages,?\s*tips,?\s*etc\.?`)
	w2StateWithheld  = newAmountRule(0, `state\s+income\s+tax`)
	w2StateCodeRe    = regexp.MustCompile(`(?i:\b15\s+state\b)(?i:\s+employer'?s\s+state\s+id(?:\s+number)?)?[^\n]{0,20}?\n?[^\n]{0,20}?\b([A-Z]{2})\b`)
	w2EmployerLabels = []string{`employer'?s\s+name:`, `employer'?s\s+name[^\n]*`}
	w2EmployeeLabels = []string{`employee'?s\s+name:`, `employee'?s\s+(?:first\s+)?name[^\n]*`}

	w2Rules = []amountRule{w2Wages, w2FederalWH, w2SSWages, w2SSWithheld, w2MedicareWages, w2MedicareWH, w2StateWages, w2StateWithheld}
)

func extractW2(text string) models.ExtractionResult {
	text = unfoldLabelRows(text, w2Rules)
	var w weighted
	f := &models.W2Fields{}

	w2Wages.apply(text, &w, &f.Wages)
	w2FederalWH.apply(text, &w, &f.FederalWithheld)
	w2SSWages.apply(text, &w, &f.SocialSecurityWages)
	w2SSWithheld.apply(text, &w, &f.SocialSecurityWithheld)
	w2MedicareWages.apply(text, &w, &f.MedicareWages)
	w2MedicareWH.apply(text, &w, &f.MedicareWithheld)

	f.EmployerName = textAfter(text, w2EmployerLabels...)
	w.add(1, f.EmployerName != "")
	f.EmployerEIN = findTIN(text, `employer\s+identification\s+number`, `\bein\b`)
	w.add(1, f.EmployerEIN != "")
	f.EmployeeName = textAfter(text, w2EmployeeLabels...)

	if m := w2StateCodeRe.FindStringSubmatch(text); m != nil {
		f.StateCode = utils.NormalizeStateCode(m[1])
	}
	if f.StateCode != "" {
		w2StateWages.apply(text, &w, &f.StateWages)
		w2StateWithheld.apply(text, &w, &f.StateWithheld)
	}

	return models.ExtractionResult{
		Fields:     models.ExtractedFields{DocumentType: models.DocTypeW2, W2: f},
		Confidence: w.confidence(),
	}
}
