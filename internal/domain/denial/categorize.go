package denial

import (
	"strings"
	"unicode"
)

// keywordRules are checked in order; the first rule with a keyword found in
// the lowercased reason wins.
var keywordRules = []struct {
	category Category
	keywords []string
}{
	{CategoryAuthorization, []string{"authorization", "prior auth", "precertification", "pre-certification", "referral"}},
	{CategoryCoverage, []string{"coverage", "not covered", "non-covered", "eligib", "benefit maximum"}},
	{CategoryDuplicate, []string{"duplicate"}},
	{CategoryTimelyFiling, []string{"timely filing", "filing limit", "time limit for filing"}},
	{CategoryClinical, []string{"medical necessity", "medically necessary", "clinical", "experimental", "investigational"}},
}

// carcCategories maps claim adjustment reason codes to a category for
// denials whose reason text carries no keyword.
var carcCategories = map[string]Category{
	"18":  CategoryDuplicate,
	"29":  CategoryTimelyFiling,
	"15":  CategoryAuthorization,
	"197": CategoryAuthorization,
	"198": CategoryAuthorization,
	"26":  CategoryCoverage,
	"27":  CategoryCoverage,
	"96":  CategoryCoverage,
	"50":  CategoryClinical,
	"55":  CategoryClinical,
}

// Categorize classifies a denial. The result depends only on its inputs.
func Categorize(code, reason string) Category {
	text := strings.ToLower(reason)
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(text, kw) {
				return rule.category
			}
		}
	}
	if cat, ok := carcCategories[normalizeCode(code)]; ok {
		return cat
	}
	return CategoryTechnical
}

// normalizeCode strips the group prefix (CO, PR, OA, PI, CR) and
// separators, so "CO-197" and "197" compare equal.
func normalizeCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	code = strings.TrimLeftFunc(code, func(r rune) bool { return unicode.IsLetter(r) || r == '-' || r == ' ' })
	return strings.TrimLeft(code, "0")
}
