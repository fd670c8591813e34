package classifier

import "strings"

// Rule maps a label to the keywords that identify it
type Rule struct {
	Label    string
	Keywords []string
}

// DefaultRules is checked in order; the first rule with any keyword present
// in the lower-cased page text wins. Generic "invoice" goes last so that more
// specific documents mentioning an invoice number still resolve correctly.
var DefaultRules = []Rule{
	{Label: "swift", Keywords: []string{"{1:f01", "swift message", "swift mt"}},
	{Label: "letter_of_credit", Keywords: []string{"letter of credit", "documentary credit", "l/c no"}},
	{Label: "bill_of_exchange", Keywords: []string{"bill of exchange", "sight draft"}},
	{Label: "bill_of_lading", Keywords: []string{"bill of lading", "b/l no"}},
	{Label: "air_waybill", Keywords: []string{"air waybill", "airway bill", "awb no"}},
	{Label: "packing_list", Keywords: []string{"packing list"}},
	{Label: "certificate_of_origin", Keywords: []string{"certificate of origin"}},
	{Label: "insurance", Keywords: []string{"insurance certificate", "insurance policy"}},
	{Label: "mill_certificate", Keywords: []string{"mill certificate", "mill test certificate"}},
	{Label: "certificate_of_weight", Keywords: []string{"certificate of weight", "weight certificate"}},
	{Label: "shipping_company_certificate", Keywords: []string{"certificate from shipping company", "shipping company certificate"}},
	{Label: "inspection_certificate", Keywords: []string{"inspection certificate"}},
	{Label: "invoice", Keywords: []string{"commercial invoice", "proforma invoice", "tax invoice", "invoice"}},
}

// matchRules returns the first rule label whose keyword occurs in lower
func matchRules(rules []Rule, lower string) (string, bool) {
	for _, r := range rules {
		for _, kw := range r.Keywords {
			if strings.Contains(lower, kw) {
				return r.Label, true
			}
		}
	}
	return "", false
}
