package store

import "github.com/punchamoorthee/classfund/internal/domain"

// setInvoiceStatus overwrites an invoice status the way an external process
// marking it paid would.
func (m *Memory) setInvoiceStatus(id int64, status domain.InvoiceStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inv, ok := m.invoices[id]; ok {
		inv.Status = status
		m.invoices[id] = inv
	}
}
