package directory

// DefaultWorkUnits is the built-in practice-area catalog for the licensee
// directory, ordered into four priority tiers. Configuration may replace it
// entirely; ranks are assigned from position so the slice order is the
// crawl order.
func DefaultWorkUnits() []WorkUnit {
	names := []struct {
		id   int
		name string
	}{
		// Tier 1: high priority
		{51, "Personal Injury"},
		{34, "Immigration"},
		{63, "Workers Compensation"},
		{46, "Medical Malpractice"},
		{52, "Products Liability"},
		{58, "Toxic Torts"},
		{9, "Bankruptcy"},
		{42, "Labor & Employment"},
		{16, "Construction Law"},
		{66, "Landlord-Tenant Law"},
		{36, "Insurance"},
		{10, "Business Law"},
		{43, "Legal Malpractice"},
		{53, "Professional Liability"},
		// Tier 2: moderate priority
		{29, "Family Law"},
		{19, "Criminal Law"},
		{54, "Real Estate"},
		{22, "Elder Law"},
		{60, "Trusts & Estates"},
		{61, "Wills & Probate"},
		{62, "White Collar Crime"},
		{11, "Civil Rights"},
		{56, "Taxation"},
		{33, "Health Care"},
		{65, "Homeowner Association Law"},
		// Tier 3: additional high-value areas
		{55, "Social Security"},
		{64, "Wrongful Termination"},
		{20, "Debtor/Creditor"},
		{15, "Consumer Protection"},
		{3, "Adoption"},
		{38, "Juvenile Law"},
		{8, "Appellate"},
		{12, "Collections"},
		{40, "Land Use/Zoning"},
		{17, "Contracts"},
		{18, "Corporate/Securities"},
		// Tier 4: niche areas
		{35, "Intellectual Property"},
		{26, "Environmental/Natural Resources"},
		{47, "Military/Veterans"},
		{21, "Education"},
		{23, "Eminent Domain"},
		{25, "Entertainment/Sports"},
		{45, "LGBTQ Law"},
		{50, "Patent"},
		{59, "Trademark/Trade Secrets"},
		{49, "Nonprofit/Tax Exempt"},
	}

	units := make([]WorkUnit, 0, len(names))
	for i, n := range names {
		units = append(units, WorkUnit{ID: n.id, Name: n.name, Rank: i + 1})
	}
	return units
}

// UnitByID finds a unit in the slice; ok is false when absent.
func UnitByID(units []WorkUnit, id int) (WorkUnit, bool) {
	for _, u := range units {
		if u.ID == id {
			return u, true
		}
	}
	return WorkUnit{}, false
}
