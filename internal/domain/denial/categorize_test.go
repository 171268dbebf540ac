package denial

import "testing"

func TestCategorize(t *testing.T) {
	tests := []struct {
		name   string
		code   string
		reason string
		want   Category
	}{
		{"authorization keyword", "", "Prior authorization not obtained", CategoryAuthorization},
		{"coverage keyword", "", "Service not covered under plan", CategoryCoverage},
		{"duplicate keyword", "", "Duplicate claim/service", CategoryDuplicate},
		{"timely filing keyword", "", "Timely filing limit exceeded", CategoryTimelyFiling},
		{"clinical keyword", "", "Not medically necessary", CategoryClinical},
		{"case insensitive", "", "DUPLICATE SUBMISSION", CategoryDuplicate},
		{"authorization beats coverage", "", "Referral missing; coverage terminated", CategoryAuthorization},
		{"coverage beats duplicate", "", "Duplicate of a non-covered service: coverage lapsed", CategoryCoverage},
		{"keyword beats code", "CO-18", "Medical necessity not established", CategoryClinical},
		{"carc duplicate", "CO-18", "See remittance", CategoryDuplicate},
		{"carc timely", "29", "", CategoryTimelyFiling},
		{"carc authorization", "CO197", "", CategoryAuthorization},
		{"carc coverage", "PR-27", "", CategoryCoverage},
		{"carc clinical", "50", "", CategoryClinical},
		{"unknown code", "CO-16", "Claim lacks information", CategoryTechnical},
		{"empty", "", "", CategoryTechnical},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.code, tt.reason); got != tt.want {
				t.Errorf("Categorize(%q, %q) = %s, want %s", tt.code, tt.reason, got, tt.want)
			}
		})
	}
}

func TestCategorize_Deterministic(t *testing.T) {
	first := Categorize("CO-197", "Precertification absent")
	for i := 0; i < 50; i++ {
		if got := Categorize("CO-197", "Precertification absent"); got != first {
			t.Fatalf("run %d: %s != %s", i, got, first)
		}
	}
}

func TestCategory_Appealable(t *testing.T) {
	for cat, want := range map[Category]bool{
		CategoryAuthorization: true,
		CategoryCoverage:      true,
		CategoryDuplicate:     false,
		CategoryTimelyFiling:  false,
		CategoryClinical:      true,
		CategoryTechnical:     true,
	} {
		if got := cat.Appealable(); got != want {
			t.Errorf("%s.Appealable() = %v, want %v", cat, got, want)
		}
	}
}

func TestNormalizeCode(t *testing.T) {
	for in, want := range map[string]string{
		"CO-197": "197",
		"co197":  "197",
		" 18 ":   "18",
		"PR 027": "27",
		"OA-":    "",
	} {
		if got := normalizeCode(in); got != want {
			t.Errorf("normalizeCode(%q) = %q, want %q", in, got, want)
		}
	}
}
