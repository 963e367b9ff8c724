package devserver

import (
	"leasesign/internal/field"
	"leasesign/internal/gateway"
)

// DemoToken is the signing token of the built-in demo lease.
const DemoToken = "demo-lease"

// DemoDocumentName is where the demo lease HTML is served when it is
// referenced instead of inlined.
const DemoDocumentName = "residential-lease.html"

// DemoLeaseHTML is a short residential lease.
const DemoLeaseHTML = `<article>
<h1>Residential Lease Agreement</h1>
<p>This Residential Lease Agreement is entered into between Harbor View Properties LLC ("Landlord") and the undersigned ("Tenant").</p>
<h2 id="premises">1. Premises</h2>
<p>Landlord leases to Tenant the dwelling located at 412 Alder Street, Unit 3B, together with one assigned parking space.</p>
<h2>2. Term</h2>
<p>The lease begins on the first day of next month and continues for twelve (12) months, then month to month unless either party gives sixty days written notice.</p>
<h2>3. Rent</h2>
<p>Monthly rent is $1,850.00, due on the first day of each month. Rent received after the fifth day incurs a late fee of $75.00.</p>
<h3>3.1 Payment Methods</h3>
<p>Rent may be paid through the tenant portal, by ACH transfer, or by cashier's check delivered to the management office.</p>
<h2>4. Security Deposit</h2>
<p>Tenant shall pay a security deposit of $1,850.00, held in a separate trust account and returned within twenty-one days of move-out less itemized deductions.</p>
<h2>5. Maintenance and Repairs</h2>
<p>Tenant shall keep the premises clean and report needed repairs through the maintenance portal. Landlord shall make repairs within a reasonable time.</p>
<ul>
<li>Tenant replaces light bulbs and smoke detector batteries.</li>
<li>Landlord services heating, plumbing and appliances supplied with the unit.</li>
</ul>
<h2>6. Pets</h2>
<p>No pets without prior written consent. Approved pets require a pet addendum and a deposit of $300.00.</p>
<h2>7. Signatures</h2>
<p>By signing below, Tenant acknowledges having read and understood this agreement and agrees to its terms.</p>
</article>`

// DemoLease returns the demo session. When inline is false the document is
// referenced by URL instead of embedded.
func DemoLease(inline bool) gateway.Session {
	s := gateway.Session{
		DocumentTitle: "Residential Lease Agreement",
		SignerName:    "Jordan Avery",
		SignerEmail:   "jordan.avery@example.com",
		Fields: []field.Field{
			{ID: "rent-initials", Type: field.TypeInitial, Label: "Initials: rent and late fees", SectionContext: "3. Rent", Required: true},
			{ID: "deposit-initials", Type: field.TypeInitial, Label: "Initials: security deposit", SectionContext: "4. Security Deposit", Required: true},
			{ID: "pet-ack", Type: field.TypeText, Label: "Pets you intend to keep (optional)", SectionContext: "6. Pets"},
			{ID: "tenant-signature", Type: field.TypeSignature, Label: "Tenant signature", SectionContext: "7. Signatures", Required: true},
			{ID: "sign-date", Type: field.TypeDate, Label: "Date signed", SectionContext: "7. Signatures", Required: true},
		},
	}
	if inline {
		s.DocumentContent = DemoLeaseHTML
	} else {
		s.DocumentURL = "/documents/" + DemoDocumentName
	}
	return s
}

// LoadDemo registers the demo lease and its document.
func (s *Server) LoadDemo(inline bool) {
	s.AddDocument(DemoDocumentName, DemoLeaseHTML)
	s.AddSession(DemoToken, DemoLease(inline))
}
