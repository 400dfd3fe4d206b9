package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shiftlyhq/backend/internal/api/domain"
	"github.com/shiftlyhq/backend/internal/api/storage"
	"github.com/shiftlyhq/backend/internal/events"
	"github.com/shiftlyhq/backend/internal/psp"
)

// In-memory stores mirroring the conditional-update semantics of the
// PostgreSQL layer, so service behavior is tested against the same
// contract the real storage honors.

type fakeJobStore struct {
	mu   sync.Mutex
	jobs map[string]*domain.Job
}

func newFakeJobStore() *fakeJobStore {
	return &fakeJobStore{jobs: map[string]*domain.Job{}}
}

func (f *fakeJobStore) CreateJob(_ context.Context, job *domain.Job) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *job
	f.jobs[job.ID] = &copied
	return nil
}

func (f *fakeJobStore) GetJobByID(_ context.Context, jobID string) (*domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	copied := *job
	return &copied, nil
}

func (f *fakeJobStore) TransitionJob(_ context.Context, jobID string, from, to domain.JobStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != from {
		return domain.NewInvalidTransition("job", string(job.Status), string(to))
	}
	job.Status = to
	if to == domain.JobStatusPublished {
		now := time.Now().UTC()
		job.PublishedAt = &now
	}
	return nil
}

func (f *fakeJobStore) IncrementWorkersAccepted(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.Status != domain.JobStatusPublished || job.WorkersAccepted >= job.WorkersNeeded {
		return domain.NewConflict("job %s has no available worker slots", jobID)
	}
	job.WorkersAccepted++
	return nil
}

func (f *fakeJobStore) DecrementWorkersAccepted(_ context.Context, jobID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return domain.ErrJobNotFound
	}
	if job.WorkersAccepted > 0 {
		job.WorkersAccepted--
	}
	return nil
}

func (f *fakeJobStore) ListJobs(_ context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	jobs := []domain.Job{}
	for _, job := range f.jobs {
		if filter.BusinessID != "" && job.BusinessID != filter.BusinessID {
			continue
		}
		if filter.JobType != "" && job.JobType != filter.JobType {
			continue
		}
		if filter.Status != "" && string(job.Status) != filter.Status {
			continue
		}
		jobs = append(jobs, *job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].CreatedAt.After(jobs[j].CreatedAt) })
	if filter.PageSize > 0 && len(jobs) > filter.PageSize {
		jobs = jobs[:filter.PageSize]
	}
	return jobs, nil
}

func (f *fakeJobStore) SearchPublished(_ context.Context, filter storage.SearchFilter) ([]domain.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	today := time.Now().UTC().Truncate(24 * time.Hour)
	jobs := []domain.Job{}
	for _, job := range f.jobs {
		if job.Status != domain.JobStatusPublished || job.IsFull() {
			continue
		}
		if job.Date.Before(today) {
			continue
		}
		if job.LocationLat < filter.Box.MinLat || job.LocationLat > filter.Box.MaxLat {
			continue
		}
		if job.LocationLng < filter.Box.MinLng || job.LocationLng > filter.Box.MaxLng {
			continue
		}
		if filter.JobType != "" && job.JobType != filter.JobType {
			continue
		}
		jobs = append(jobs, *job)
	}
	if filter.Limit > 0 && len(jobs) > filter.Limit {
		jobs = jobs[:filter.Limit]
	}
	return jobs, nil
}

type fakeApplicationStore struct {
	mu   sync.Mutex
	apps map[string]*domain.JobApplication
}

func newFakeApplicationStore() *fakeApplicationStore {
	return &fakeApplicationStore{apps: map[string]*domain.JobApplication{}}
}

func (f *fakeApplicationStore) CreateApplication(_ context.Context, app *domain.JobApplication) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.apps {
		if existing.JobID == app.JobID && existing.WorkerID == app.WorkerID {
			return domain.NewConflict("worker %s has already applied to job %s", app.WorkerID, app.JobID)
		}
	}
	copied := *app
	f.apps[app.ID] = &copied
	return nil
}

func (f *fakeApplicationStore) GetApplicationByID(_ context.Context, applicationID string) (*domain.JobApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[applicationID]
	if !ok {
		return nil, domain.ErrApplicationNotFound
	}
	copied := *app
	return &copied, nil
}

func (f *fakeApplicationStore) ListApplicationsByJob(_ context.Context, jobID string) ([]domain.JobApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apps := []domain.JobApplication{}
	for _, app := range f.apps {
		if app.JobID == jobID {
			apps = append(apps, *app)
		}
	}
	return apps, nil
}

func (f *fakeApplicationStore) ListApplicationsByWorker(_ context.Context, workerID string) ([]domain.JobApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apps := []domain.JobApplication{}
	for _, app := range f.apps {
		if app.WorkerID == workerID {
			apps = append(apps, *app)
		}
	}
	return apps, nil
}

func (f *fakeApplicationStore) ListAcceptedByJob(_ context.Context, jobID string) ([]domain.JobApplication, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	apps := []domain.JobApplication{}
	for _, app := range f.apps {
		if app.JobID == jobID && app.Status == domain.ApplicationStatusAccepted {
			apps = append(apps, *app)
		}
	}
	return apps, nil
}

func (f *fakeApplicationStore) TransitionApplication(_ context.Context, applicationID string, from, to domain.ApplicationStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[applicationID]
	if !ok {
		return domain.ErrApplicationNotFound
	}
	if app.Status != from {
		return domain.NewInvalidTransition("application", string(app.Status), string(to))
	}
	app.Status = to
	now := time.Now().UTC()
	if app.RespondedAt == nil {
		app.RespondedAt = &now
	}
	return nil
}

type fakeCheckInStore struct {
	mu       sync.Mutex
	checkins map[string]*domain.CheckIn
}

func newFakeCheckInStore() *fakeCheckInStore {
	return &fakeCheckInStore{checkins: map[string]*domain.CheckIn{}}
}

func (f *fakeCheckInStore) CreateCheckIn(_ context.Context, checkIn *domain.CheckIn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.checkins[checkIn.ApplicationID]; ok {
		return domain.NewConflict("application %s is already checked in", checkIn.ApplicationID)
	}
	copied := *checkIn
	f.checkins[checkIn.ApplicationID] = &copied
	return nil
}

func (f *fakeCheckInStore) GetCheckInByApplication(_ context.Context, applicationID string) (*domain.CheckIn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	checkIn, ok := f.checkins[applicationID]
	if !ok {
		return nil, domain.ErrCheckInNotFound
	}
	copied := *checkIn
	return &copied, nil
}

func (f *fakeCheckInStore) CompleteCheckOut(_ context.Context, applicationID string, checkedOutAt time.Time, lat, lng float64, deviceInfo domain.Metadata) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	checkIn, ok := f.checkins[applicationID]
	if !ok {
		return domain.ErrCheckInNotFound
	}
	if checkIn.CheckedOutAt != nil {
		return domain.NewConflict("application %s is already checked out", applicationID)
	}
	checkIn.CheckedOutAt = &checkedOutAt
	checkIn.CheckOutLat = &lat
	checkIn.CheckOutLng = &lng
	checkIn.DeviceInfo = deviceInfo
	return nil
}

type fakePaymentStore struct {
	mu      sync.Mutex
	txns    map[string]*domain.Transaction
	escrows map[string]*domain.Escrow
	payouts map[string]*domain.Payout
}

func newFakePaymentStore() *fakePaymentStore {
	return &fakePaymentStore{
		txns:    map[string]*domain.Transaction{},
		escrows: map[string]*domain.Escrow{},
		payouts: map[string]*domain.Payout{},
	}
}

func (f *fakePaymentStore) CreateTransaction(_ context.Context, txn *domain.Transaction) (*domain.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.txns {
		if existing.IdempotencyKey == txn.IdempotencyKey {
			copied := *existing
			return &copied, false, nil
		}
	}
	copied := *txn
	f.txns[txn.ID] = &copied
	result := copied
	return &result, true, nil
}

func (f *fakePaymentStore) GetTransactionByID(_ context.Context, transactionID string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[transactionID]
	if !ok {
		return nil, domain.ErrTransactionNotFound
	}
	copied := *txn
	return &copied, nil
}

func (f *fakePaymentStore) GetTransactionByIntentID(_ context.Context, intentID string) (*domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, txn := range f.txns {
		if txn.PaymentIntentID == intentID {
			copied := *txn
			return &copied, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (f *fakePaymentStore) MarkTransactionHeld(_ context.Context, transactionID, intentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[transactionID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if txn.Status != domain.TransactionStatusPending {
		return domain.NewInvalidTransition("transaction", string(txn.Status), string(domain.TransactionStatusHeld))
	}
	txn.Status = domain.TransactionStatusHeld
	txn.PaymentIntentID = intentID
	return nil
}

func (f *fakePaymentStore) UpdateTransactionAmounts(_ context.Context, transactionID string, amount, platformFee, workerPayout int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[transactionID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if txn.Status != domain.TransactionStatusHeld {
		return domain.NewConflict("transaction %s is %s, amounts are frozen", transactionID, txn.Status)
	}
	txn.Amount = amount
	txn.PlatformFee = platformFee
	txn.WorkerPayout = workerPayout
	return nil
}

func (f *fakePaymentStore) TransitionTransaction(_ context.Context, transactionID string, from, to domain.TransactionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	txn, ok := f.txns[transactionID]
	if !ok {
		return domain.ErrTransactionNotFound
	}
	if txn.Status != from {
		return domain.NewInvalidTransition("transaction", string(txn.Status), string(to))
	}
	txn.Status = to
	if to == domain.TransactionStatusCompleted {
		now := time.Now().UTC()
		txn.CompletedAt = &now
	}
	return nil
}

func (f *fakePaymentStore) ListRefundableByJob(_ context.Context, jobID string) ([]domain.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	txns := []domain.Transaction{}
	for _, txn := range f.txns {
		if txn.JobID == jobID && txn.IsRefundable() {
			txns = append(txns, *txn)
		}
	}
	return txns, nil
}

func (f *fakePaymentStore) CreateEscrow(_ context.Context, escrow *domain.Escrow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.escrows {
		if existing.ApplicationID == escrow.ApplicationID {
			return domain.NewConflict("escrow already exists for application %s", escrow.ApplicationID)
		}
	}
	copied := *escrow
	f.escrows[escrow.ID] = &copied
	return nil
}

func (f *fakePaymentStore) GetEscrowByApplication(_ context.Context, applicationID string) (*domain.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, escrow := range f.escrows {
		if escrow.ApplicationID == applicationID {
			copied := *escrow
			return &copied, nil
		}
	}
	return nil, domain.ErrEscrowNotFound
}

func (f *fakePaymentStore) GetEscrowByTransaction(_ context.Context, transactionID string) (*domain.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, escrow := range f.escrows {
		if escrow.TransactionID == transactionID {
			copied := *escrow
			return &copied, nil
		}
	}
	return nil, domain.ErrEscrowNotFound
}

func (f *fakePaymentStore) ResolveEscrow(_ context.Context, escrowID string, to domain.EscrowStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	escrow, ok := f.escrows[escrowID]
	if !ok {
		return domain.ErrEscrowNotFound
	}
	if escrow.Status != domain.EscrowStatusHeld {
		return domain.NewConflict("escrow %s is no longer held", escrowID)
	}
	escrow.Status = to
	now := time.Now().UTC()
	escrow.ReleasedAt = &now
	return nil
}

func (f *fakePaymentStore) ListExpiredHeldEscrows(_ context.Context, limit int) ([]domain.Escrow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	escrows := []domain.Escrow{}
	now := time.Now().UTC()
	for _, escrow := range f.escrows {
		if escrow.Status != domain.EscrowStatusHeld {
			continue
		}
		if escrow.HeldAt.Add(time.Duration(escrow.AutoReleaseHours) * time.Hour).After(now) {
			continue
		}
		escrows = append(escrows, *escrow)
		if len(escrows) == limit {
			break
		}
	}
	return escrows, nil
}

func (f *fakePaymentStore) CreatePayout(_ context.Context, payout *domain.Payout) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *payout
	f.payouts[payout.ID] = &copied
	return nil
}

func (f *fakePaymentStore) GetPayoutByID(_ context.Context, payoutID string) (*domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payout, ok := f.payouts[payoutID]
	if !ok {
		return nil, domain.ErrPayoutNotFound
	}
	copied := *payout
	return &copied, nil
}

func (f *fakePaymentStore) GetPayoutByTransferID(_ context.Context, transferID string) (*domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, payout := range f.payouts {
		if payout.TransferID == transferID {
			copied := *payout
			return &copied, nil
		}
	}
	return nil, domain.ErrPayoutNotFound
}

func (f *fakePaymentStore) MarkPayoutProcessing(_ context.Context, payoutID, transferID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payout, ok := f.payouts[payoutID]
	if !ok {
		return domain.ErrPayoutNotFound
	}
	if payout.Status != domain.PayoutStatusPending && payout.Status != domain.PayoutStatusFailed {
		return domain.NewConflict("payout %s is not awaiting transfer", payoutID)
	}
	payout.Status = domain.PayoutStatusProcessing
	payout.TransferID = transferID
	return nil
}

func (f *fakePaymentStore) MarkPayoutCompleted(_ context.Context, payoutID string, completedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payout, ok := f.payouts[payoutID]
	if !ok {
		return domain.ErrPayoutNotFound
	}
	if payout.Status == domain.PayoutStatusCompleted {
		return nil
	}
	payout.Status = domain.PayoutStatusCompleted
	payout.CompletedAt = &completedAt
	payout.FailureReason = ""
	return nil
}

func (f *fakePaymentStore) MarkPayoutFailed(_ context.Context, payoutID, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	payout, ok := f.payouts[payoutID]
	if !ok {
		return domain.ErrPayoutNotFound
	}
	if payout.Status == domain.PayoutStatusCompleted {
		return nil
	}
	payout.Status = domain.PayoutStatusFailed
	payout.FailureReason = reason
	payout.RetryCount++
	now := time.Now().UTC()
	payout.FailedAt = &now
	return nil
}

func (f *fakePaymentStore) ListFailedPayouts(_ context.Context, maxRetries, limit int) ([]domain.Payout, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payouts := []domain.Payout{}
	for _, payout := range f.payouts {
		if payout.Status != domain.PayoutStatusFailed || payout.RetryCount >= maxRetries {
			continue
		}
		payouts = append(payouts, *payout)
		if len(payouts) == limit {
			break
		}
	}
	return payouts, nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []events.Notification
	err  error
}

func (f *fakeNotifier) Notify(_ context.Context, notification events.Notification) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, notification)
	return nil
}

func (f *fakeNotifier) sentKinds() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	kinds := make([]string, len(f.sent))
	for i, n := range f.sent {
		kinds[i] = n.Kind
	}
	return kinds
}

type fakeFraudSink struct {
	mu      sync.Mutex
	signals []events.FraudSignal
}

func (f *fakeFraudSink) Record(_ context.Context, signal events.FraudSignal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signals = append(f.signals, signal)
	return nil
}

type fakeAccounts struct {
	accounts map[string]string
}

func (f *fakeAccounts) DestinationAccount(_ context.Context, workerID string) (string, error) {
	return f.accounts[workerID], nil
}

// env bundles fully wired services backed by fakes and the mock gateway.
type env struct {
	jobs     *fakeJobStore
	apps     *fakeApplicationStore
	checkins *fakeCheckInStore
	payments *fakePaymentStore
	notifier *fakeNotifier
	fraud    *fakeFraudSink
	gateway  *psp.MockGateway

	settlement  *SettlementEngine
	jobSvc      *JobService
	appSvc      *ApplicationService
	checkInSvc  *CheckInService
	matchingSvc *MatchingService
	webhookSvc  *WebhookService
	paymentSvc  *PaymentService
}

func newEnv() *env {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	e := &env{
		jobs:     newFakeJobStore(),
		apps:     newFakeApplicationStore(),
		checkins: newFakeCheckInStore(),
		payments: newFakePaymentStore(),
		notifier: &fakeNotifier{},
		fraud:    &fakeFraudSink{},
		gateway:  psp.NewMockGateway("", logger),
	}

	e.settlement = NewSettlementEngine(e.payments, e.checkins, e.jobs, e.gateway, &fakeAccounts{accounts: map[string]string{}}, e.notifier, logger, SettlementConfig{
		Currency:         "KGS",
		PlatformFeeRate:  0.10,
		AutoReleaseHours: 24,
		MaxPayoutRetries: 3,
	})
	e.jobSvc = NewJobService(e.jobs, e.apps, e.payments, e.settlement, e.notifier, e.fraud, logger)
	e.appSvc = NewApplicationService(e.apps, e.jobs, e.settlement, e.notifier, e.fraud, logger)
	e.checkInSvc = NewCheckInService(e.checkins, e.apps, e.jobs, e.settlement, e.notifier, e.fraud, logger)
	e.matchingSvc = NewMatchingService(e.jobs, logger, MatchingConfig{
		DefaultRadiusKm: 10,
		MaxRadiusKm:     50,
		DefaultLimit:    20,
	})
	e.webhookSvc = NewWebhookService(e.gateway, e.settlement, logger)
	e.paymentSvc = NewPaymentService(e.payments, e.settlement, logger)

	return e
}

var (
	business = domain.Actor{ID: "biz-1", Type: "business", Verified: true}
	worker   = domain.Actor{ID: "wrk-1", Type: "worker", Verified: true}
)

// jobDate is a week out, so shifts in fixtures are publishable.
var jobDate = time.Now().UTC().AddDate(0, 0, 7).Truncate(24 * time.Hour)

func validJobInput() CreateJobInput {
	return CreateJobInput{
		JobType:         domain.JobTypeWaiter,
		Title:           "Evening shift waiter",
		Description:     "Busy Friday evening",
		Date:            jobDate,
		StartTime:       "18:00",
		EndTime:         "23:00",
		HourlyRate:      1000,
		WorkersNeeded:   2,
		LocationName:    "Cafe Ala-Too",
		LocationAddress: "Chuy 100, Bishkek",
		LocationLat:     42.8746,
		LocationLng:     74.5698,
	}
}

// seedAcceptedApplication walks a job and application through to accepted
// and returns both, with escrow held.
func seedAcceptedApplication(e *env) (*domain.Job, *domain.JobApplication) {
	ctx := context.Background()
	job, err := e.jobSvc.Create(ctx, business, validJobInput())
	if err != nil {
		panic(err)
	}
	job, err = e.jobSvc.Publish(ctx, business, job.ID)
	if err != nil {
		panic(err)
	}
	app, err := e.appSvc.Apply(ctx, worker, job.ID, "ready to work")
	if err != nil {
		panic(err)
	}
	app, err = e.appSvc.Accept(ctx, business, app.ID)
	if err != nil {
		panic(err)
	}
	job, err = e.jobSvc.Get(ctx, job.ID)
	if err != nil {
		panic(err)
	}
	return job, app
}

// seedCheckedOut records a finished shift of the given length for the
// application, bypassing the check-in service.
func seedCheckedOut(e *env, applicationID string, hours float64) {
	out := time.Now().UTC()
	in := out.Add(-time.Duration(float64(time.Hour) * hours))
	e.checkins.mu.Lock()
	defer e.checkins.mu.Unlock()
	e.checkins.checkins[applicationID] = &domain.CheckIn{
		ID:            "ci-" + applicationID,
		ApplicationID: applicationID,
		CheckedInAt:   in,
		CheckedOutAt:  &out,
		DeviceInfo:    domain.Metadata{},
		CreatedAt:     in,
	}
}
