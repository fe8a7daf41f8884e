package store

import "github.com/punchamoorthee/classfund/internal/domain"

type User struct {
	ID    int64
	Name  string
	Email string
}

type Class struct {
	ID   int64
	Name string
}

// Fixtures is a self-contained data set loadable into either backend.
type Fixtures struct {
	Users    []User
	Classes  []Class
	Members  []domain.Member
	Cycles   []domain.FeeCycle
	Invoices []domain.Invoice
	Expenses []domain.Expense
}

// DemoFixtures is one class with an owner, two members and a fee cycle of
// 200000 per member with an unpaid invoice for each member.
func DemoFixtures() Fixtures {
	return Fixtures{
		Users: []User{
			{ID: 1, Name: "Class Owner", Email: "owner@example.com"},
			{ID: 2, Name: "Member One", Email: "m1@example.com"},
			{ID: 3, Name: "Member Two", Email: "m2@example.com"},
		},
		Classes: []Class{{ID: 1, Name: "12A1"}},
		Members: []domain.Member{
			{ID: 1, ClassID: 1, UserID: 1, Role: domain.RoleOwner},
			{ID: 2, ClassID: 1, UserID: 2, Role: domain.RoleMember},
			{ID: 3, ClassID: 1, UserID: 3, Role: domain.RoleMember},
		},
		Cycles: []domain.FeeCycle{
			{ID: 1, ClassID: 1, Name: "Fund HK1/2025", AmountPerMember: 200000},
		},
		Invoices: []domain.Invoice{
			{ID: 1, CycleID: 1, ClassID: 1, MemberID: 2, Amount: 200000, Status: domain.InvoiceUnpaid},
			{ID: 2, CycleID: 1, ClassID: 1, MemberID: 3, Amount: 200000, Status: domain.InvoiceUnpaid},
		},
	}
}
