package orders

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// tickingClock advances one second per call so orders get distinct timestamps.
func tickingClock(start time.Time) func() time.Time {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
}

func newTestLifecycle(products ...Product) (*Lifecycle, *memStore) {
	st := newMemStore(products...)
	start := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	return NewLifecycle(st, WithClock(tickingClock(start)), WithLocation(time.UTC)), st
}

func submitOne(t *testing.T, l *Lifecycle, cart Cart) *SubmitResult {
	t.Helper()
	res, err := l.Submit(context.Background(), SubmitRequest{Customer: Customer{Name: "Budi"}, Cart: cart})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	return res
}

func TestLifecycle_SubmitProcessCancel(t *testing.T) {
	nasi, _ := testCatalog()
	l, st := newTestLifecycle(nasi)
	ctx := context.Background()

	res := submitOne(t, l, Cart{"Nasi Goreng": {Quantity: 2, UnitPrice: decimal.NewFromInt(15000)}})
	if res.TableLabel != "M01" {
		t.Errorf("TableLabel = %q, want M01", res.TableLabel)
	}
	if !res.TotalAmount.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("total = %s, want 30000", res.TotalAmount)
	}
	if got := st.stock(nasi.ID); got != 10 {
		t.Fatalf("submit changed stock to %d", got)
	}

	o, err := l.GetOrder(ctx, res.OrderID.String())
	if err != nil {
		t.Fatal(err)
	}
	if o.Status != StatusPending || len(o.Lines) != 1 || o.Lines[0].Quantity != 2 {
		t.Errorf("stored order = %+v", o)
	}

	change, err := l.SetStatus(ctx, res.OrderID.String(), "processing")
	if err != nil {
		t.Fatal(err)
	}
	if change.Effect != EffectReduce || !change.Changed {
		t.Errorf("change = %+v", change)
	}
	if got := st.stock(nasi.ID); got != 8 {
		t.Errorf("stock after processing = %d, want 8", got)
	}

	change, err = l.SetStatus(ctx, res.OrderID.String(), "cancelled")
	if err != nil {
		t.Fatal(err)
	}
	if change.Effect != EffectRestore || change.From != StatusProcessing {
		t.Errorf("change = %+v", change)
	}
	if got := st.stock(nasi.ID); got != 10 {
		t.Errorf("stock after cancel = %d, want 10", got)
	}
}

func TestLifecycle_SubmitValidation(t *testing.T) {
	nasi, _ := testCatalog()
	l, st := newTestLifecycle(nasi)
	one := Cart{"Nasi Goreng": {Quantity: 1}}

	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"missing name", SubmitRequest{Customer: Customer{Name: "  "}, Cart: one}, ErrInvalidInput},
		{"empty cart", SubmitRequest{Customer: Customer{Name: "Budi"}}, ErrInvalidInput},
		{"zero quantity", SubmitRequest{Customer: Customer{Name: "Budi"}, Cart: Cart{"Nasi Goreng": {}}}, ErrInvalidInput},
		{"unknown product", SubmitRequest{Customer: Customer{Name: "Budi"}, Cart: Cart{"Sate": {Quantity: 1}}}, ErrUnresolvedProduct},
		{"bad product id", SubmitRequest{Customer: Customer{Name: "Budi"}, Cart: Cart{"Nasi Goreng": {Quantity: 1, ProductID: "x"}}}, ErrUnresolvedProduct},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
	if n := st.orderCount(); n != 0 {
		t.Errorf("%d orders stored after rejected submits", n)
	}
}

func TestLifecycle_TotalIsSumOfSubtotals(t *testing.T) {
	nasi, teh := testCatalog()
	l, _ := newTestLifecycle(nasi, teh)
	wrong := decimal.NewFromInt(1)

	res, err := l.Submit(context.Background(), SubmitRequest{
		Customer: Customer{Name: "Sari", Table: "T5"},
		Cart: Cart{
			"Nasi Goreng": {Quantity: 1},
			"Es Teh":      {Quantity: 3},
		},
		Total: &wrong,
	})
	if err != nil {
		t.Fatal(err)
	}
	if !res.TotalAmount.Equal(decimal.NewFromInt(30000)) {
		t.Errorf("total = %s, want 30000", res.TotalAmount)
	}
	sum := decimal.Zero
	for _, line := range res.Order.Lines {
		if !line.Subtotal.Equal(line.UnitPrice.Mul(decimal.NewFromInt(int64(line.Quantity)))) {
			t.Errorf("line %s subtotal = %s", line.ProductName, line.Subtotal)
		}
		sum = sum.Add(line.Subtotal)
	}
	if !sum.Equal(res.TotalAmount) {
		t.Errorf("sum of subtotals %s != total %s", sum, res.TotalAmount)
	}
	if res.TableLabel != "T5" {
		t.Errorf("supplied table replaced with %q", res.TableLabel)
	}
}

func TestLifecycle_TableSequence(t *testing.T) {
	nasi, _ := testCatalog()
	l, _ := newTestLifecycle(nasi)
	one := Cart{"Nasi Goreng": {Quantity: 1}}

	for _, want := range []string{"M01", "M02", "M03"} {
		if got := submitOne(t, l, one).TableLabel; got != want {
			t.Fatalf("TableLabel = %q, want %q", got, want)
		}
	}
	if _, err := l.Submit(context.Background(), SubmitRequest{Customer: Customer{Name: "Ani", Table: "T5"}, Cart: one}); err != nil {
		t.Fatal(err)
	}
	// The latest label of the day is not an M label, so the counter restarts.
	if got := submitOne(t, l, one).TableLabel; got != "M01" {
		t.Errorf("TableLabel after T5 = %q, want M01", got)
	}
}

func TestLifecycle_ConcurrentSubmitsGetDistinctLabels(t *testing.T) {
	nasi, _ := testCatalog()
	l, _ := newTestLifecycle(nasi)

	const n = 20
	labels := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := l.Submit(context.Background(), SubmitRequest{
				Customer: Customer{Name: "guest"},
				Cart:     Cart{"Nasi Goreng": {Quantity: 1}},
			})
			if err != nil {
				t.Error(err)
				return
			}
			labels <- res.TableLabel
		}()
	}
	wg.Wait()
	close(labels)

	seen := map[string]bool{}
	for label := range labels {
		if seen[label] {
			t.Errorf("label %s assigned twice", label)
		}
		seen[label] = true
	}
	if len(seen) != n {
		t.Errorf("got %d labels, want %d", len(seen), n)
	}
}

func TestLifecycle_InsufficientStockIsAtomic(t *testing.T) {
	nasi, teh := testCatalog()
	l, st := newTestLifecycle(nasi, teh)
	ctx := context.Background()

	res, err := l.Submit(ctx, SubmitRequest{
		Customer: Customer{Name: "Budi"},
		Cart: Cart{
			"Nasi Goreng": {Quantity: 2},
			"Es Teh":      {Quantity: 5},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = l.SetStatus(ctx, res.OrderID.String(), "processing")
	var oe *Error
	if !errors.As(err, &oe) || oe.Kind != KindInsufficientStock {
		t.Fatalf("err = %v, want insufficient stock", err)
	}
	if len(oe.Shortages) != 1 || oe.Shortages[0].ProductName != "Es Teh" {
		t.Errorf("shortages = %+v", oe.Shortages)
	}
	if st.stock(nasi.ID) != 10 || st.stock(teh.ID) != 3 {
		t.Errorf("stock changed: nasi=%d teh=%d", st.stock(nasi.ID), st.stock(teh.ID))
	}
	o, _ := l.GetOrder(ctx, res.OrderID.String())
	if o.Status != StatusPending {
		t.Errorf("status = %s, want pending", o.Status)
	}
}

func TestLifecycle_SameStatusIsNoop(t *testing.T) {
	nasi, _ := testCatalog()
	l, st := newTestLifecycle(nasi)
	ctx := context.Background()
	id := submitOne(t, l, Cart{"Nasi Goreng": {Quantity: 3}}).OrderID.String()

	for _, s := range []string{"processing", "completed"} {
		if _, err := l.SetStatus(ctx, id, s); err != nil {
			t.Fatal(err)
		}
	}
	change, err := l.SetStatus(ctx, id, "COMPLETED")
	if err != nil {
		t.Fatal(err)
	}
	if change.Changed || change.Effect != EffectNone {
		t.Errorf("repeat completed = %+v", change)
	}
	if got := st.stock(nasi.ID); got != 7 {
		t.Errorf("stock = %d, want 7", got)
	}
}

// setStatuses applies each status in turn and returns the last change.
func setStatuses(t *testing.T, l *Lifecycle, id string, statuses ...string) *StatusChange {
	t.Helper()
	var c *StatusChange
	for _, s := range statuses {
		var err error
		if c, err = l.SetStatus(context.Background(), id, s); err != nil {
			t.Fatalf("SetStatus(%s): %v", s, err)
		}
	}
	return c
}

func TestLifecycle_CancelledToCompletedOverwrites(t *testing.T) {
	nasi, _ := testCatalog()
	l, st := newTestLifecycle(nasi)
	id := submitOne(t, l, Cart{"Nasi Goreng": {Quantity: 2}}).OrderID.String()

	c := setStatuses(t, l, id, "cancelled", "completed")
	if !c.Changed || c.From != StatusCancelled || c.Status != StatusCompleted || c.Effect != EffectNone {
		t.Errorf("change = %+v", c)
	}
	if got := st.stock(nasi.ID); got != 10 {
		t.Errorf("stock = %d, want 10", got)
	}

	c = setStatuses(t, l, id, "cancelled")
	if !c.Changed || c.Effect != EffectNone {
		t.Errorf("completed -> cancelled = %+v", c)
	}
}

func TestLifecycle_OverwriteChainsMoveStockOnce(t *testing.T) {
	nasi, _ := testCatalog()
	tests := []struct {
		name     string
		statuses []string
		want     int
	}{
		{"back to pending and forward again", []string{"processing", "pending", "processing"}, 8},
		{"reopened after cancel and cancelled again", []string{"processing", "cancelled", "processing", "cancelled"}, 10},
		{"reopened after cancel then completed", []string{"processing", "cancelled", "processing", "completed"}, 10},
		{"completed then cancelled keeps deduction", []string{"processing", "completed", "cancelled"}, 8},
		{"pending cancel then processing", []string{"cancelled", "processing", "cancelled"}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, st := newTestLifecycle(nasi)
			id := submitOne(t, l, Cart{"Nasi Goreng": {Quantity: 2}}).OrderID.String()
			setStatuses(t, l, id, tt.statuses...)
			if got := st.stock(nasi.ID); got != tt.want {
				t.Errorf("stock = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestLifecycle_PendingCancelHasNoStockEffect(t *testing.T) {
	nasi, _ := testCatalog()
	l, st := newTestLifecycle(nasi)
	id := submitOne(t, l, Cart{"Nasi Goreng": {Quantity: 1}}).OrderID.String()

	change, err := l.SetStatus(context.Background(), id, "cancelled")
	if err != nil {
		t.Fatal(err)
	}
	if change.Effect != EffectNone || len(change.Adjusted) != 0 {
		t.Errorf("change = %+v", change)
	}
	if st.stock(nasi.ID) != 10 {
		t.Errorf("stock = %d", st.stock(nasi.ID))
	}
}

func TestLifecycle_ConcurrentProcessingReducesOnce(t *testing.T) {
	nasi, _ := testCatalog()
	l, st := newTestLifecycle(nasi)
	id := submitOne(t, l, Cart{"Nasi Goreng": {Quantity: 2}}).OrderID.String()

	var wg sync.WaitGroup
	var mu sync.Mutex
	changed := 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, err := l.SetStatus(context.Background(), id, "processing")
			if err != nil {
				t.Error(err)
				return
			}
			if c.Changed {
				mu.Lock()
				changed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if changed != 1 {
		t.Errorf("%d calls reported a change, want 1", changed)
	}
	if got := st.stock(nasi.ID); got != 8 {
		t.Errorf("stock = %d, want 8", got)
	}
}

func TestLifecycle_SetStatusErrors(t *testing.T) {
	nasi, _ := testCatalog()
	l, _ := newTestLifecycle(nasi)
	id := submitOne(t, l, Cart{"Nasi Goreng": {Quantity: 1}}).OrderID.String()

	tests := []struct {
		name, id, status string
		want             error
	}{
		{"invalid status", id, "shipped", ErrInvalidStatus},
		{"unknown order", uuid.NewString(), "completed", ErrNotFound},
		{"malformed id", "abc", "completed", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.SetStatus(context.Background(), tt.id, tt.status)
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestLifecycle_PersistenceFailureStoresNothing(t *testing.T) {
	nasi, _ := testCatalog()
	l, st := newTestLifecycle(nasi)
	st.failInsert = errors.New("connection reset")

	_, err := l.Submit(context.Background(), SubmitRequest{
		Customer: Customer{Name: "Budi"},
		Cart:     Cart{"Nasi Goreng": {Quantity: 1}},
	})
	if !errors.Is(err, ErrPersistence) {
		t.Fatalf("err = %v, want persistence failure", err)
	}
	if st.orderCount() != 0 {
		t.Error("failed submit left an order behind")
	}
}

func TestLifecycle_PublicOrder(t *testing.T) {
	nasi, teh := testCatalog()
	l, _ := newTestLifecycle(nasi, teh)
	res, err := l.Submit(context.Background(), SubmitRequest{
		Customer: Customer{Name: "Budi", Phone: strPtr("0812")},
		Cart: Cart{
			"Nasi Goreng": {Quantity: 2},
			"Es Teh":      {Quantity: 1},
		},
	})
	if err != nil {
		t.Fatal(err)
	}

	pub, err := l.GetPublicOrder(context.Background(), res.OrderID.String())
	if err != nil {
		t.Fatal(err)
	}
	if pub.EstimatedTime != 11 {
		t.Errorf("EstimatedTime = %d, want 11", pub.EstimatedTime)
	}
	if pub.CustomerDetails.Table != "M01" || pub.Status != StatusPending {
		t.Errorf("public order = %+v", pub)
	}
	if !pub.Timestamp.Equal(res.Order.CreatedAt) {
		t.Errorf("Timestamp = %v, want %v", pub.Timestamp, res.Order.CreatedAt)
	}
}

func TestLifecycle_ListOrdersNewestFirst(t *testing.T) {
	nasi, teh := testCatalog()
	l, _ := newTestLifecycle(nasi, teh)
	first := submitOne(t, l, Cart{"Nasi Goreng": {Quantity: 1}})
	second := submitOne(t, l, Cart{"Nasi Goreng": {Quantity: 1}, "Es Teh": {Quantity: 1}})

	list, err := l.ListOrders(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != second.OrderID || list[1].ID != first.OrderID {
		t.Fatalf("list = %+v", list)
	}
	if list[0].ItemCount != 2 {
		t.Errorf("ItemCount = %d, want 2", list[0].ItemCount)
	}
}

func strPtr(s string) *string { return &s }
