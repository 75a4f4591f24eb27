package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"guardline/internal/domain/booking"
	"guardline/internal/domain/message"
	"guardline/internal/general/contracts"
	"guardline/internal/general/logger"
	"guardline/internal/ports"
)

// fakeUOW runs the function directly; there is no transaction to roll back,
// so tests assert explicitly that rejected operations wrote nothing.
type fakeUOW struct{}

func (fakeUOW) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeBookingRepo struct {
	bookings map[string]*booking.Booking
	nextID   int

	statusWrites  int
	approveWrites int
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[string]*booking.Booking)}
}

func (r *fakeBookingRepo) Create(_ context.Context, b *booking.Booking) error {
	r.nextID++
	b.ID = fmt.Sprintf("bkg-%d", r.nextID)
	cp := *b
	r.bookings[b.ID] = &cp
	return nil
}

func (r *fakeBookingRepo) GetByID(_ context.Context, id string) (*booking.Booking, error) {
	b, ok := r.bookings[id]
	if !ok {
		return nil, ports.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (r *fakeBookingRepo) UpdateStatus(_ context.Context, id string, status booking.Status, ts time.Time) error {
	b, ok := r.bookings[id]
	if !ok {
		return ports.ErrBookingNotFound
	}
	b.Status = status
	b.UpdatedAt = ts
	r.statusWrites++
	return nil
}

func (r *fakeBookingRepo) SetOperator(_ context.Context, id, operatorID string) error {
	b, ok := r.bookings[id]
	if !ok {
		return ports.ErrBookingNotFound
	}
	b.OperatorID = &operatorID
	return nil
}

func (r *fakeBookingRepo) SetPaymentApproved(_ context.Context, id string) (bool, error) {
	b, ok := r.bookings[id]
	if !ok {
		return false, ports.ErrBookingNotFound
	}
	if b.PaymentApproved {
		return false, nil
	}
	b.PaymentApproved = true
	r.approveWrites++
	return true, nil
}

func (r *fakeBookingRepo) Cancel(_ context.Context, id, reason string, fee, refund *float64, cancelledAt time.Time) error {
	b, ok := r.bookings[id]
	if !ok {
		return ports.ErrBookingNotFound
	}
	b.Status = booking.StatusCancelled
	b.CancelledAt = &cancelledAt
	if reason != "" {
		b.CancellationReason = &reason
	}
	b.CancellationFee = fee
	b.RefundAmount = refund
	return nil
}

type fakeMessageRepo struct {
	msgs   []*message.Message
	nextID int
}

func (r *fakeMessageRepo) Insert(_ context.Context, m *message.Message) error {
	r.nextID++
	m.ID = fmt.Sprintf("msg-%d", r.nextID)
	m.CreatedAt = time.Now().UTC()
	r.msgs = append(r.msgs, m.Clone())
	return nil
}

func (r *fakeMessageRepo) ListByBooking(_ context.Context, bookingID string, _ *time.Time) ([]*message.Message, error) {
	var out []*message.Message
	for _, m := range r.msgs {
		if m.BookingID == bookingID {
			out = append(out, m.Clone())
		}
	}
	return out, nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, id string) (*message.Message, error) {
	for _, m := range r.msgs {
		if m.ID == id {
			return m.Clone(), nil
		}
	}
	return nil, ports.ErrMessageNotFound
}

func (r *fakeMessageRepo) bodies(bookingID string) []string {
	var out []string
	for _, m := range r.msgs {
		if m.BookingID == bookingID {
			out = append(out, m.Body)
		}
	}
	return out
}

type fakeFeedPublisher struct {
	published []*message.Message
}

func (f *fakeFeedPublisher) PublishMessage(_ context.Context, m *message.Message) error {
	f.published = append(f.published, m.Clone())
	return nil
}

type fakeStatusPublisher struct {
	routingKeys []string
}

func (f *fakeStatusPublisher) Publish(_, routingKey string, _ []byte) error {
	f.routingKeys = append(f.routingKeys, routingKey)
	return nil
}

type fakeStatusNotifier struct {
	pushed []contracts.WSBookingStatus
}

func (f *fakeStatusNotifier) PushBookingStatus(_ context.Context, update contracts.WSBookingStatus) {
	f.pushed = append(f.pushed, update)
}

type fixture struct {
	svc      ports.BookingService
	bookings *fakeBookingRepo
	messages *fakeMessageRepo
	feed     *fakeFeedPublisher
	pub      *fakeStatusPublisher
	watchers *fakeStatusNotifier
}

func newFixture() *fixture {
	bookings := newFakeBookingRepo()
	messages := &fakeMessageRepo{}
	feed := &fakeFeedPublisher{}
	pub := &fakeStatusPublisher{}
	watchers := &fakeStatusNotifier{}
	svc := NewBookingService(logger.New("booking-test"), fakeUOW{}, bookings, messages, feed, pub, watchers)
	return &fixture{svc: svc, bookings: bookings, messages: messages, feed: feed, pub: pub, watchers: watchers}
}

func (f *fixture) createBooking(t *testing.T) string {
	t.Helper()
	res, err := f.svc.CreateBooking(context.Background(), ports.CreateBookingInput{
		ClientID:       "client-1",
		ServiceType:    "armed_protection",
		VehicleType:    "Mercedes S-Class",
		ProtectorCount: 2,
		Duration:       "2 days",
		PickupAddress:  "12 Marina Rd, Lagos",
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	return res.BookingID
}

func (f *fixture) sendInvoice(t *testing.T, bookingID string) ports.SendInvoiceResult {
	t.Helper()
	res, err := f.svc.SendInvoice(context.Background(), ports.SendInvoiceInput{
		BookingID:  bookingID,
		OperatorID: "op-1",
		Currency:   "NGN",
	})
	if err != nil {
		t.Fatalf("SendInvoice: %v", err)
	}
	return res
}

func TestCreateBookingWritesOpeningMessage(t *testing.T) {
	f := newFixture()

	res, err := f.svc.CreateBooking(context.Background(), ports.CreateBookingInput{
		ClientID:       "client-1",
		ServiceType:    "unarmed_protection",
		ProtectorCount: 1,
		PickupAddress:  "1 Broad St",
	})
	if err != nil {
		t.Fatalf("CreateBooking: %v", err)
	}
	if res.Status != "PENDING" {
		t.Fatalf("status = %s, want PENDING", res.Status)
	}
	if !strings.HasPrefix(res.BookingNumber, "BKG_") {
		t.Fatalf("booking number = %q", res.BookingNumber)
	}

	got := f.messages.bodies(res.BookingID)
	if len(got) != 1 || got[0] != "Booking request received" {
		t.Fatalf("thread = %v", got)
	}
	if !f.messages.msgs[0].IsSystem {
		t.Fatal("opening message not marked system")
	}

	// committed message announced on the feed, status published on the topic
	if len(f.feed.published) != 1 {
		t.Fatalf("feed publishes = %d, want 1", len(f.feed.published))
	}
	if len(f.pub.routingKeys) != 1 || f.pub.routingKeys[0] != "booking.status.pending" {
		t.Fatalf("routing keys = %v", f.pub.routingKeys)
	}
}

func TestCreateBookingRejectsInvalidInput(t *testing.T) {
	f := newFixture()

	_, err := f.svc.CreateBooking(context.Background(), ports.CreateBookingInput{
		ClientID:       "client-1",
		ServiceType:    "armed_protection",
		ProtectorCount: 0,
		PickupAddress:  "1 Broad St",
	})
	if !errors.Is(err, booking.ErrProtectorCountInvalid) {
		t.Fatalf("err = %v, want ErrProtectorCountInvalid", err)
	}
	if len(f.messages.msgs) != 0 || len(f.bookings.bookings) != 0 {
		t.Fatal("rejected create left writes behind")
	}
}

func TestInvoiceThenApprovalAcceptsPendingBooking(t *testing.T) {
	f := newFixture()
	id := f.createBooking(t)
	inv := f.sendInvoice(t, id)

	if inv.TotalAmount <= 0 {
		t.Fatalf("total = %v", inv.TotalAmount)
	}
	if !strings.Contains(inv.PaymentURL, inv.MessageID) {
		t.Fatalf("payment url %q does not reference message %q", inv.PaymentURL, inv.MessageID)
	}

	res, err := f.svc.ApprovePayment(context.Background(), id, inv.MessageID)
	if err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}
	if res.AlreadyApproved {
		t.Fatal("first approval reported AlreadyApproved")
	}
	if !res.PaymentApproved || res.Status != "ACCEPTED" {
		t.Fatalf("result = %+v", res)
	}

	b, _ := f.bookings.GetByID(context.Background(), id)
	if !b.PaymentApproved || b.Status != booking.StatusAccepted {
		t.Fatalf("booking = status %s approved %v", b.Status, b.PaymentApproved)
	}

	got := f.messages.bodies(id)
	want := "Payment approved"
	if got[len(got)-1] != want {
		t.Fatalf("last message = %q, want %q", got[len(got)-1], want)
	}
}

func TestApprovePaymentIsIdempotent(t *testing.T) {
	f := newFixture()
	id := f.createBooking(t)
	inv := f.sendInvoice(t, id)

	if _, err := f.svc.ApprovePayment(context.Background(), id, inv.MessageID); err != nil {
		t.Fatalf("first ApprovePayment: %v", err)
	}
	before := len(f.messages.bodies(id))

	res, err := f.svc.ApprovePayment(context.Background(), id, inv.MessageID)
	if err != nil {
		t.Fatalf("second ApprovePayment: %v", err)
	}
	if !res.AlreadyApproved || !res.PaymentApproved {
		t.Fatalf("result = %+v", res)
	}

	// the replay writes no second "Payment approved" message
	if after := len(f.messages.bodies(id)); after != before {
		t.Fatalf("thread grew from %d to %d on replay", before, after)
	}
	if f.bookings.approveWrites != 1 {
		t.Fatalf("approve writes = %d, want 1", f.bookings.approveWrites)
	}
}

func TestApprovePaymentRejectsForeignOrNonInvoiceMessage(t *testing.T) {
	f := newFixture()
	idA := f.createBooking(t)
	idB := f.createBooking(t)
	invB := f.sendInvoice(t, idB)

	_, err := f.svc.ApprovePayment(context.Background(), idA, invB.MessageID)
	if !errors.Is(err, ErrInvoiceBookingMismatch) {
		t.Fatalf("err = %v, want ErrInvoiceBookingMismatch", err)
	}

	// msg-1 is booking A's opening system message, not an invoice
	_, err = f.svc.ApprovePayment(context.Background(), idA, "msg-1")
	if !errors.Is(err, ErrNotInvoiceMessage) {
		t.Fatalf("err = %v, want ErrNotInvoiceMessage", err)
	}

	_, err = f.svc.ApprovePayment(context.Background(), idA, "msg-999")
	if !errors.Is(err, ports.ErrMessageNotFound) {
		t.Fatalf("err = %v, want ErrMessageNotFound", err)
	}
}

func TestDispatchGateRejectsUnpaidBooking(t *testing.T) {
	f := newFixture()
	id := f.createBooking(t)

	if _, err := f.svc.Transition(context.Background(), id, booking.ActionConfirm, "op-1", ""); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	before := len(f.messages.bodies(id))

	_, err := f.svc.Transition(context.Background(), id, booking.ActionDispatch, "op-1", "")
	if !errors.Is(err, booking.ErrPaymentNotApproved) {
		t.Fatalf("err = %v, want ErrPaymentNotApproved", err)
	}

	// the rejection writes nothing: no status change, no system message
	b, _ := f.bookings.GetByID(context.Background(), id)
	if b.Status != booking.StatusAccepted || b.EnRouteAt != nil {
		t.Fatalf("booking mutated by rejected dispatch: %+v", b)
	}
	if after := len(f.messages.bodies(id)); after != before {
		t.Fatalf("thread grew from %d to %d on rejected dispatch", before, after)
	}
}

func TestFullLifecycleRecordsSystemMessages(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.createBooking(t)
	inv := f.sendInvoice(t, id)
	if _, err := f.svc.ApprovePayment(ctx, id, inv.MessageID); err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}

	steps := []struct {
		action booking.Action
		status string
		text   string
	}{
		{booking.ActionDispatch, "EN_ROUTE", "Protection team deployed"},
		{booking.ActionMarkArrived, "ARRIVED", "Protection team has arrived"},
		{booking.ActionStartService, "IN_SERVICE", "Protection service started"},
		{booking.ActionComplete, "COMPLETED", "Protection service completed"},
	}
	for _, step := range steps {
		res, err := f.svc.Transition(ctx, id, step.action, "op-1", "")
		if err != nil {
			t.Fatalf("%s: %v", step.action, err)
		}
		if res.Status != step.status {
			t.Fatalf("%s: status = %s, want %s", step.action, res.Status, step.status)
		}
		if res.Message != step.text {
			t.Fatalf("%s: message = %q, want %q", step.action, res.Message, step.text)
		}
	}

	got := f.messages.bodies(id)
	want := []string{
		"Booking request received",
		"Payment approved",
		"Protection team deployed",
		"Protection team has arrived",
		"Protection service started",
		"Protection service completed",
	}
	// the invoice message sits between the first two; skip message kind
	// filtering and check the system texts appear in order
	gi := 0
	for _, w := range want {
		found := false
		for ; gi < len(got); gi++ {
			if got[gi] == w {
				found = true
				gi++
				break
			}
		}
		if !found {
			t.Fatalf("system text %q missing or out of order in %v", w, got)
		}
	}

	last := f.pub.routingKeys[len(f.pub.routingKeys)-1]
	if last != "booking.status.completed" {
		t.Fatalf("last routing key = %q", last)
	}
}

func TestCancelPaidBookingRecordsSplit(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.createBooking(t)
	inv := f.sendInvoice(t, id)
	if _, err := f.svc.ApprovePayment(ctx, id, inv.MessageID); err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}
	if _, err := f.svc.Transition(ctx, id, booking.ActionDispatch, "op-1", ""); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// en-route cancellation of a paid booking deducts 50%
	preview, err := f.svc.PreviewCancellation(ctx, id)
	if err != nil {
		t.Fatalf("PreviewCancellation: %v", err)
	}
	if preview.CancellationFee != inv.TotalAmount*0.50 {
		t.Fatalf("preview fee = %v, want %v", preview.CancellationFee, inv.TotalAmount*0.50)
	}
	if preview.CancellationFee+preview.RefundAmount != inv.TotalAmount {
		t.Fatalf("split %v + %v does not cover total %v",
			preview.CancellationFee, preview.RefundAmount, inv.TotalAmount)
	}

	res, err := f.svc.Transition(ctx, id, booking.ActionCancel, "client-1", "change of plans")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Status != "CANCELLED" {
		t.Fatalf("status = %s", res.Status)
	}
	if !strings.Contains(res.Message, "Cancellation fee: NGN") {
		t.Fatalf("cancel message = %q", res.Message)
	}

	b, _ := f.bookings.GetByID(ctx, id)
	if b.CancellationFee == nil || *b.CancellationFee != preview.CancellationFee {
		t.Fatalf("persisted fee = %v, want %v", b.CancellationFee, preview.CancellationFee)
	}
	if b.CancellationReason == nil || *b.CancellationReason != "change of plans" {
		t.Fatalf("reason = %v", b.CancellationReason)
	}
}

func TestCancelUnpaidBookingHasNoFee(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.createBooking(t)

	preview, err := f.svc.PreviewCancellation(ctx, id)
	if err != nil {
		t.Fatalf("PreviewCancellation: %v", err)
	}
	if preview.CancellationFee != 0 || preview.RefundAmount != 0 {
		t.Fatalf("unpaid preview = %+v", preview)
	}

	res, err := f.svc.Transition(ctx, id, booking.ActionCancel, "client-1", "")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if res.Message != "Booking cancelled" {
		t.Fatalf("message = %q", res.Message)
	}

	b, _ := f.bookings.GetByID(ctx, id)
	if b.CancellationFee != nil || b.RefundAmount != nil {
		t.Fatal("unpaid cancellation recorded a fee split")
	}
}

func TestSendInvoiceRejectsTerminalBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.createBooking(t)
	if _, err := f.svc.Transition(ctx, id, booking.ActionCancel, "client-1", ""); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	_, err := f.svc.SendInvoice(ctx, ports.SendInvoiceInput{BookingID: id, OperatorID: "op-1", Currency: "NGN"})
	if !errors.Is(err, ErrInvoiceNotAllowed) {
		t.Fatalf("err = %v, want ErrInvoiceNotAllowed", err)
	}

	_, err = f.svc.PreviewCancellation(ctx, id)
	if !errors.Is(err, booking.ErrInvalidStatusTransition) {
		t.Fatalf("preview err = %v, want ErrInvalidStatusTransition", err)
	}
}

func TestTransitionUnknownBookingOrAction(t *testing.T) {
	ctx := context.Background()
	f := newFixture()

	_, err := f.svc.Transition(ctx, "bkg-404", booking.ActionConfirm, "op-1", "")
	if !errors.Is(err, ports.ErrBookingNotFound) {
		t.Fatalf("err = %v, want ErrBookingNotFound", err)
	}

	id := f.createBooking(t)
	_, err = f.svc.Transition(ctx, id, booking.Action("TELEPORT"), "op-1", "")
	if !errors.Is(err, booking.ErrInvalidAction) {
		t.Fatalf("err = %v, want ErrInvalidAction", err)
	}
}

func TestTransitionPushesStatusToWatchers(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.createBooking(t)
	inv := f.sendInvoice(t, id)
	if _, err := f.svc.ApprovePayment(ctx, id, inv.MessageID); err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}
	if _, err := f.svc.Transition(ctx, id, booking.ActionDispatch, "op-1", ""); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// create, approval and dispatch each reach WebSocket watchers
	if len(f.watchers.pushed) != 3 {
		t.Fatalf("pushed %d status updates, want 3", len(f.watchers.pushed))
	}
	last := f.watchers.pushed[len(f.watchers.pushed)-1]
	if last.Type != "booking_status" {
		t.Fatalf("type = %q, want booking_status", last.Type)
	}
	if last.BookingID != id || last.Status != "EN_ROUTE" {
		t.Fatalf("pushed %s/%s, want %s/EN_ROUTE", last.BookingID, last.Status, id)
	}
	if !strings.HasPrefix(last.BookingNumber, "BKG_") {
		t.Fatalf("booking number = %q", last.BookingNumber)
	}

	// an approval replay changes nothing, so watchers hear nothing
	if _, err := f.svc.ApprovePayment(ctx, id, inv.MessageID); err != nil {
		t.Fatalf("replayed ApprovePayment: %v", err)
	}
	if len(f.watchers.pushed) != 3 {
		t.Fatalf("replay pushed a status update, total = %d", len(f.watchers.pushed))
	}
}

func TestSendInvoiceRejectsDispatchedBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture()
	id := f.createBooking(t)
	inv := f.sendInvoice(t, id)
	if _, err := f.svc.ApprovePayment(ctx, id, inv.MessageID); err != nil {
		t.Fatalf("ApprovePayment: %v", err)
	}
	if _, err := f.svc.Transition(ctx, id, booking.ActionDispatch, "op-1", ""); err != nil {
		t.Fatalf("dispatch: %v", err)
	}

	// invoices belong to the pending/accepted phase, not to a deployed team
	before := len(f.messages.bodies(id))
	_, err := f.svc.SendInvoice(ctx, ports.SendInvoiceInput{BookingID: id, OperatorID: "op-1", Currency: "NGN"})
	if !errors.Is(err, ErrInvoiceNotAllowed) {
		t.Fatalf("err = %v, want ErrInvoiceNotAllowed", err)
	}
	if got := len(f.messages.bodies(id)); got != before {
		t.Fatalf("thread grew from %d to %d messages on a rejected invoice", before, got)
	}
}
