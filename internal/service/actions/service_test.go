package actions

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/idp-labs/portal/internal/domain"
	"github.com/idp-labs/portal/internal/engine"
	"github.com/idp-labs/portal/internal/repo"
)

type fakeStores struct {
	services map[string]domain.Service
	tenants  map[string]domain.Tenant
	records  []domain.ActionRecord
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		services: map[string]domain.Service{},
		tenants:  map[string]domain.Tenant{},
	}
}

func (f *fakeStores) Services() repo.ServiceStore { return &fakeServices{f} }
func (f *fakeStores) Tenants() repo.TenantStore   { return &fakeTenants{f} }
func (f *fakeStores) Actions() repo.ActionStore   { return &fakeActions{f} }

func (f *fakeStores) InTx(_ context.Context, fn func(repo.Stores) error) error {
	return fn(f)
}

type fakeServices struct{ f *fakeStores }

func (s *fakeServices) Create(_ context.Context, svc domain.Service) error {
	if _, ok := s.f.services[svc.ID]; ok {
		return repo.ErrConflict
	}
	s.f.services[svc.ID] = svc
	return nil
}

func (s *fakeServices) Get(_ context.Context, id string) (domain.Service, error) {
	svc, ok := s.f.services[id]
	if !ok {
		return domain.Service{}, repo.ErrNotFound
	}
	return svc, nil
}

func (s *fakeServices) GetForUpdate(ctx context.Context, id string) (domain.Service, error) {
	return s.Get(ctx, id)
}

func (s *fakeServices) List(_ context.Context) ([]domain.Service, error) {
	out := make([]domain.Service, 0, len(s.f.services))
	for _, svc := range s.f.services {
		out = append(out, svc)
	}
	return out, nil
}

func (s *fakeServices) Update(_ context.Context, svc domain.Service) error {
	if _, ok := s.f.services[svc.ID]; !ok {
		return repo.ErrNotFound
	}
	s.f.services[svc.ID] = svc
	return nil
}

func (s *fakeServices) Delete(_ context.Context, id string) error {
	if _, ok := s.f.services[id]; !ok {
		return repo.ErrNotFound
	}
	delete(s.f.services, id)
	return nil
}

func (s *fakeServices) SetProvisionState(_ context.Context, id string, status domain.ActionStatus, detail string) error {
	svc, ok := s.f.services[id]
	if !ok {
		return repo.ErrNotFound
	}
	svc.ProvisionStatus = status
	svc.ProvisionDetail = detail
	s.f.services[id] = svc
	return nil
}

type fakeTenants struct{ f *fakeStores }

func (s *fakeTenants) GetByName(_ context.Context, name string) (domain.Tenant, error) {
	tenant, ok := s.f.tenants[name]
	if !ok {
		return domain.Tenant{}, repo.ErrNotFound
	}
	return tenant, nil
}

func (s *fakeTenants) Create(_ context.Context, tenant domain.Tenant) error {
	if _, ok := s.f.tenants[tenant.Name]; ok {
		return repo.ErrConflict
	}
	s.f.tenants[tenant.Name] = tenant
	return nil
}

func (s *fakeTenants) List(_ context.Context) ([]domain.Tenant, error) {
	out := make([]domain.Tenant, 0, len(s.f.tenants))
	for _, tenant := range s.f.tenants {
		out = append(out, tenant)
	}
	return out, nil
}

func (s *fakeTenants) SetState(_ context.Context, name string, status domain.ActionStatus, detail string) error {
	tenant, ok := s.f.tenants[name]
	if !ok {
		return repo.ErrNotFound
	}
	tenant.Status = status
	tenant.Detail = detail
	s.f.tenants[name] = tenant
	return nil
}

type fakeActions struct{ f *fakeStores }

func (s *fakeActions) Create(_ context.Context, record domain.ActionRecord) error {
	if err := record.Validate(); err != nil {
		return err
	}
	s.f.records = append(s.f.records, record)
	return nil
}

func (s *fakeActions) Get(_ context.Context, id string) (domain.ActionRecord, error) {
	for _, record := range s.f.records {
		if record.ID == id {
			return record, nil
		}
	}
	return domain.ActionRecord{}, repo.ErrNotFound
}

func (s *fakeActions) Update(_ context.Context, id string, status domain.ActionStatus, detail string, handle string) (bool, error) {
	for i, record := range s.f.records {
		if record.ID != id {
			continue
		}
		next := domain.NormalizeActionStatus(string(status))
		if next == "" || next == domain.StatusNotRequested {
			return false, fmt.Errorf("invalid status %q", status)
		}
		if !domain.CanTransition(record.Status, next) {
			if record.Status.Terminal() {
				return false, nil
			}
			return false, fmt.Errorf("invalid transition %s -> %s", record.Status, next)
		}
		if next == domain.StatusInProgress && handle == "" && record.ExecutionHandle == "" {
			return false, errors.New("in_progress requires an execution handle")
		}
		record.Status = next
		record.Detail = detail
		if handle != "" {
			record.ExecutionHandle = handle
		}
		s.f.records[i] = record
		return true, nil
	}
	return false, repo.ErrNotFound
}

func (s *fakeActions) Latest(_ context.Context, serviceID string, kind domain.ActionKind) (domain.ActionRecord, error) {
	return s.latest(func(r domain.ActionRecord) bool {
		return r.ServiceID == serviceID && r.Kind == kind
	})
}

func (s *fakeActions) LatestForTenant(_ context.Context, tenant string, kind domain.ActionKind) (domain.ActionRecord, error) {
	return s.latest(func(r domain.ActionRecord) bool {
		return r.Tenant == tenant && r.Kind == kind
	})
}

func (s *fakeActions) LatestDeploy(_ context.Context, serviceID string, environment string) (domain.ActionRecord, error) {
	return s.latest(func(r domain.ActionRecord) bool {
		return r.ServiceID == serviceID && r.Kind == domain.ActionDeploy && r.Environment == environment
	})
}

func (s *fakeActions) latest(match func(domain.ActionRecord) bool) (domain.ActionRecord, error) {
	var found domain.ActionRecord
	ok := false
	for _, record := range s.f.records {
		if !match(record) {
			continue
		}
		if !ok || !record.CreatedAt.Before(found.CreatedAt) {
			found = record
			ok = true
		}
	}
	if !ok {
		return domain.ActionRecord{}, repo.ErrNotFound
	}
	return found, nil
}

func (s *fakeActions) HasOpen(_ context.Context, serviceID string, kind domain.ActionKind) (bool, error) {
	for _, record := range s.f.records {
		if record.ServiceID == serviceID && record.Kind == kind && !record.Status.Terminal() {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeActions) ListByService(_ context.Context, serviceID string, limit int) ([]domain.ActionRecord, error) {
	var out []domain.ActionRecord
	for i := len(s.f.records) - 1; i >= 0; i-- {
		if s.f.records[i].ServiceID != serviceID {
			continue
		}
		out = append(out, s.f.records[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

type fakeEngine struct {
	startHandle   string
	startErr      error
	startInputs   [][]byte
	exec          engine.Execution
	describeErr   error
	describeCalls int
}

func (e *fakeEngine) Start(_ context.Context, input []byte) (string, error) {
	e.startInputs = append(e.startInputs, input)
	if e.startErr != nil {
		return "", e.startErr
	}
	return e.startHandle, nil
}

func (e *fakeEngine) Describe(_ context.Context, _ string) (engine.Execution, error) {
	e.describeCalls++
	if e.describeErr != nil {
		return engine.Execution{}, e.describeErr
	}
	return e.exec, nil
}

func testService() domain.Service {
	return domain.Service{
		ID:              "svc-1",
		Name:            "checkout",
		RepoURL:         "https://git.example.com/payments/checkout",
		OwnerTeam:       "payments",
		Runtime:         "go",
		Tier:            "backend",
		Environments:    []string{"staging", "prod"},
		Tenant:          "Acme Corp",
		ProvisionStatus: domain.StatusNotRequested,
	}
}

func newTestCore(stores repo.Stores, eng engine.Engine) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(logger, stores, eng, Config{BucketPrefix: "idp-tenant"})
}

func TestRequestProvisionWithoutEngine(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	core := newTestCore(stores, nil)

	result, err := core.RequestProvision(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("RequestProvision: %v", err)
	}
	if result.Status != domain.StatusSucceeded {
		t.Fatalf("status = %s, want %s", result.Status, domain.StatusSucceeded)
	}
	if !strings.Contains(result.Detail, "not configured") {
		t.Fatalf("detail = %q, want local completion message", result.Detail)
	}
	svc := stores.services["svc-1"]
	if svc.ProvisionStatus != domain.StatusSucceeded {
		t.Fatalf("service provision status = %s", svc.ProvisionStatus)
	}
	tenant, ok := stores.tenants["Acme Corp"]
	if !ok {
		t.Fatal("tenant was not created")
	}
	if tenant.Namespace != "tenant-acme-corp" || tenant.RDSSchema != "tenant_acme-corp" {
		t.Fatalf("tenant resources = %q / %q", tenant.Namespace, tenant.RDSSchema)
	}
	if tenant.S3Bucket != "idp-tenant-acme-corp" {
		t.Fatalf("tenant bucket = %q", tenant.S3Bucket)
	}
	if tenant.Status != domain.StatusSucceeded {
		t.Fatalf("tenant status = %s", tenant.Status)
	}
	if len(stores.records) != 1 {
		t.Fatalf("records = %d, want 1", len(stores.records))
	}
}

func TestRequestProvisionStartsExecution(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	eng := &fakeEngine{startHandle: "arn:aws:states:::execution:prov-1"}
	core := newTestCore(stores, eng)

	result, err := core.RequestProvision(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("RequestProvision: %v", err)
	}
	if result.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want %s", result.Status, domain.StatusInProgress)
	}
	record := stores.records[0]
	if record.ExecutionHandle != eng.startHandle {
		t.Fatalf("handle = %q, want %q", record.ExecutionHandle, eng.startHandle)
	}
	if len(eng.startInputs) != 1 {
		t.Fatalf("engine started %d times, want 1", len(eng.startInputs))
	}
	input := string(eng.startInputs[0])
	if !strings.Contains(input, `"action":"provision"`) {
		t.Fatalf("input missing action: %s", input)
	}
	if !strings.Contains(input, `"namespace":"tenant-acme-corp"`) {
		t.Fatalf("input missing tenant resources: %s", input)
	}
}

func TestRequestProvisionDispatchFailure(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	eng := &fakeEngine{startErr: errors.New("throttled")}
	core := newTestCore(stores, eng)

	result, err := core.RequestProvision(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("RequestProvision: %v", err)
	}
	if result.Status != domain.StatusFailed {
		t.Fatalf("status = %s, want %s", result.Status, domain.StatusFailed)
	}
	if !strings.Contains(result.Detail, "failed to start") || !strings.Contains(result.Detail, "throttled") {
		t.Fatalf("detail = %q", result.Detail)
	}
	record := stores.records[0]
	if record.ExecutionHandle != "" {
		t.Fatalf("failed dispatch stored handle %q", record.ExecutionHandle)
	}
	if stores.services["svc-1"].ProvisionStatus != domain.StatusFailed {
		t.Fatalf("service status = %s", stores.services["svc-1"].ProvisionStatus)
	}
}

func TestRequestProvisionConflictsWithOpenAction(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	eng := &fakeEngine{startHandle: "arn:prov-1"}
	core := newTestCore(stores, eng)

	if _, err := core.RequestProvision(context.Background(), "svc-1"); err != nil {
		t.Fatalf("first RequestProvision: %v", err)
	}
	_, err := core.RequestDeprovision(context.Background(), "svc-1")
	if !errors.Is(err, repo.ErrConflict) {
		t.Fatalf("err = %v, want ErrConflict", err)
	}
	if len(stores.records) != 1 {
		t.Fatalf("conflicting request created a record")
	}
}

func TestRequestProvisionUnknownService(t *testing.T) {
	core := newTestCore(newFakeStores(), nil)
	_, err := core.RequestProvision(context.Background(), "missing")
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestRequestDeployDefaultsToFirstEnvironment(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	core := newTestCore(stores, nil)

	result, err := core.RequestDeploy(context.Background(), "svc-1", "")
	if err != nil {
		t.Fatalf("RequestDeploy: %v", err)
	}
	if result.Environment != "staging" {
		t.Fatalf("environment = %q, want staging", result.Environment)
	}
	if result.Status != domain.StatusSucceeded {
		t.Fatalf("status = %s", result.Status)
	}
}

func TestRequestDeployRejectsUnknownEnvironment(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	core := newTestCore(stores, nil)

	_, err := core.RequestDeploy(context.Background(), "svc-1", "qa")
	if !errors.Is(err, domain.ErrInvalidEnvironment) {
		t.Fatalf("err = %v, want ErrInvalidEnvironment", err)
	}
	if len(stores.records) != 0 {
		t.Fatalf("rejected deploy created a record")
	}
}

func TestRequestDeployLeavesProvisionStateAlone(t *testing.T) {
	stores := newFakeStores()
	svc := testService()
	svc.ProvisionStatus = domain.StatusSucceeded
	svc.ProvisionDetail = "Provisioning succeeded"
	stores.services["svc-1"] = svc
	core := newTestCore(stores, nil)

	if _, err := core.RequestDeploy(context.Background(), "svc-1", "prod"); err != nil {
		t.Fatalf("RequestDeploy: %v", err)
	}
	after := stores.services["svc-1"]
	if after.ProvisionStatus != domain.StatusSucceeded || after.ProvisionDetail != "Provisioning succeeded" {
		t.Fatalf("deploy mutated provision state: %s %q", after.ProvisionStatus, after.ProvisionDetail)
	}
}

func TestProvisionStatusWithoutRecords(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	core := newTestCore(stores, nil)

	result, err := core.ProvisionStatus(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("ProvisionStatus: %v", err)
	}
	if result.Status != domain.StatusNotRequested {
		t.Fatalf("status = %s, want %s", result.Status, domain.StatusNotRequested)
	}
	if result.RecordID != "" {
		t.Fatalf("record id = %q, want empty", result.RecordID)
	}
}

func TestProvisionStatusPollsRunningExecution(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	seedRecord(stores, domain.ActionProvision, domain.StatusInProgress, "Provisioning started via workflow engine", "arn:prov-1", "")
	eng := &fakeEngine{exec: engine.Execution{State: engine.StateSucceeded}}
	core := newTestCore(stores, eng)

	result, err := core.ProvisionStatus(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("ProvisionStatus: %v", err)
	}
	if eng.describeCalls != 1 {
		t.Fatalf("describe calls = %d, want 1", eng.describeCalls)
	}
	if result.Status != domain.StatusSucceeded {
		t.Fatalf("status = %s, want %s", result.Status, domain.StatusSucceeded)
	}
	if result.Detail != "Provisioning succeeded" {
		t.Fatalf("detail = %q", result.Detail)
	}
	if stores.services["svc-1"].ProvisionStatus != domain.StatusSucceeded {
		t.Fatalf("service state not reconciled")
	}
}

func TestProvisionStatusPollKeepsCustomDetail(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	seedRecord(stores, domain.ActionProvision, domain.StatusInProgress, "Creating RDS schema", "arn:prov-1", "")
	eng := &fakeEngine{exec: engine.Execution{State: engine.StateSucceeded}}
	core := newTestCore(stores, eng)

	result, err := core.ProvisionStatus(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("ProvisionStatus: %v", err)
	}
	if result.Detail != "Creating RDS schema" {
		t.Fatalf("detail = %q, want custom detail preserved", result.Detail)
	}
}

func TestProvisionStatusPollFailureDetail(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	seedRecord(stores, domain.ActionProvision, domain.StatusInProgress, "Provisioning started via workflow engine", "arn:prov-1", "")
	eng := &fakeEngine{exec: engine.Execution{
		State:     engine.StateFailed,
		ErrorCode: "States.TaskFailed",
		Cause:     "schema already exists",
	}}
	core := newTestCore(stores, eng)

	result, err := core.ProvisionStatus(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("ProvisionStatus: %v", err)
	}
	if result.Status != domain.StatusFailed {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Detail != "States.TaskFailed: schema already exists" {
		t.Fatalf("detail = %q", result.Detail)
	}
}

func TestProvisionStatusSurvivesPollError(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	seedRecord(stores, domain.ActionProvision, domain.StatusInProgress, "Provisioning started via workflow engine", "arn:prov-1", "")
	eng := &fakeEngine{describeErr: errors.New("connection reset")}
	core := newTestCore(stores, eng)

	result, err := core.ProvisionStatus(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("ProvisionStatus: %v", err)
	}
	if result.Status != domain.StatusInProgress {
		t.Fatalf("status = %s, want unchanged in_progress", result.Status)
	}
}

func TestProvisionStatusSkipsPollForTerminalRecord(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	seedRecord(stores, domain.ActionProvision, domain.StatusSucceeded, "Provisioning succeeded", "arn:prov-1", "")
	eng := &fakeEngine{exec: engine.Execution{State: engine.StateFailed}}
	core := newTestCore(stores, eng)

	result, err := core.ProvisionStatus(context.Background(), "svc-1")
	if err != nil {
		t.Fatalf("ProvisionStatus: %v", err)
	}
	if eng.describeCalls != 0 {
		t.Fatalf("terminal record was polled")
	}
	if result.Status != domain.StatusSucceeded {
		t.Fatalf("status = %s", result.Status)
	}
}

func TestDeployStatusWithoutRecords(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	core := newTestCore(stores, nil)

	result, err := core.DeployStatus(context.Background(), "svc-1", "prod")
	if err != nil {
		t.Fatalf("DeployStatus: %v", err)
	}
	if result.Status != domain.StatusNotRequested {
		t.Fatalf("status = %s", result.Status)
	}
	if result.Environment != "prod" {
		t.Fatalf("environment = %q", result.Environment)
	}
}

func TestDeployStatusPollsLatestForEnvironment(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	seedRecord(stores, domain.ActionDeploy, domain.StatusInProgress, "Deployment started via workflow engine", "arn:dep-1", "staging")
	eng := &fakeEngine{exec: engine.Execution{State: engine.StateSucceeded}}
	core := newTestCore(stores, eng)

	result, err := core.DeployStatus(context.Background(), "svc-1", "")
	if err != nil {
		t.Fatalf("DeployStatus: %v", err)
	}
	if result.Environment != "staging" {
		t.Fatalf("environment = %q", result.Environment)
	}
	if result.Status != domain.StatusSucceeded || result.Detail != "Deployment succeeded" {
		t.Fatalf("result = %s %q", result.Status, result.Detail)
	}
}

func TestProvisionCallbackApplies(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	stores.tenants["Acme Corp"] = domain.NewTenant("t-1", "Acme Corp", "idp-tenant")
	seedRecord(stores, domain.ActionProvision, domain.StatusInProgress, "Provisioning started via workflow engine", "arn:prov-1", "")
	core := newTestCore(stores, nil)

	applied, err := core.ApplyProvisionCallback(context.Background(), CallbackReport{
		ServiceID: "svc-1",
		Tenant:    "Acme Corp",
		Status:    domain.StatusSucceeded,
		Detail:    "All resources created",
	})
	if err != nil {
		t.Fatalf("ApplyProvisionCallback: %v", err)
	}
	if !applied {
		t.Fatal("callback not applied")
	}
	if stores.records[0].Status != domain.StatusSucceeded || stores.records[0].Detail != "All resources created" {
		t.Fatalf("record = %s %q", stores.records[0].Status, stores.records[0].Detail)
	}
	if stores.services["svc-1"].ProvisionDetail != "All resources created" {
		t.Fatalf("service detail = %q", stores.services["svc-1"].ProvisionDetail)
	}
	if stores.tenants["Acme Corp"].Status != domain.StatusSucceeded {
		t.Fatalf("tenant status = %s", stores.tenants["Acme Corp"].Status)
	}
}

func TestProvisionCallbackAbsorbedAfterTerminal(t *testing.T) {
	stores := newFakeStores()
	svc := testService()
	svc.ProvisionStatus = domain.StatusSucceeded
	svc.ProvisionDetail = "Provisioning succeeded"
	stores.services["svc-1"] = svc
	stores.tenants["Acme Corp"] = domain.NewTenant("t-1", "Acme Corp", "idp-tenant")
	seedRecord(stores, domain.ActionProvision, domain.StatusSucceeded, "Provisioning succeeded", "arn:prov-1", "")
	core := newTestCore(stores, nil)

	applied, err := core.ApplyProvisionCallback(context.Background(), CallbackReport{
		ServiceID: "svc-1",
		Tenant:    "Acme Corp",
		Status:    domain.StatusFailed,
		Detail:    "late failure",
	})
	if err != nil {
		t.Fatalf("ApplyProvisionCallback: %v", err)
	}
	if applied {
		t.Fatal("late report was applied over a terminal record")
	}
	if stores.records[0].Status != domain.StatusSucceeded {
		t.Fatalf("record status = %s", stores.records[0].Status)
	}
	if stores.services["svc-1"].ProvisionStatus != domain.StatusSucceeded {
		t.Fatalf("service status = %s", stores.services["svc-1"].ProvisionStatus)
	}
}

func TestProvisionCallbackRejectsInvalidStatus(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	core := newTestCore(stores, nil)

	_, err := core.ApplyProvisionCallback(context.Background(), CallbackReport{
		ServiceID: "svc-1",
		Tenant:    "Acme Corp",
		Status:    "exploded",
	})
	if !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("err = %v, want ErrInvalidStatus", err)
	}
}

func TestDeployCallbackByRecordID(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	seedRecord(stores, domain.ActionDeploy, domain.StatusInProgress, "Deployment started via workflow engine", "arn:dep-1", "prod")
	core := newTestCore(stores, nil)

	applied, err := core.ApplyDeployCallback(context.Background(), CallbackReport{
		ServiceID: "svc-1",
		RecordID:  stores.records[0].ID,
		Status:    domain.StatusSucceeded,
	})
	if err != nil {
		t.Fatalf("ApplyDeployCallback: %v", err)
	}
	if !applied {
		t.Fatal("callback not applied")
	}
	if stores.records[0].Status != domain.StatusSucceeded {
		t.Fatalf("record status = %s", stores.records[0].Status)
	}
}

func TestDeployCallbackRejectsForeignRecord(t *testing.T) {
	stores := newFakeStores()
	stores.services["svc-1"] = testService()
	other := testService()
	other.ID = "svc-2"
	other.Name = "ledger"
	stores.services["svc-2"] = other
	seedRecord(stores, domain.ActionDeploy, domain.StatusInProgress, "Deployment started via workflow engine", "arn:dep-1", "prod")
	core := newTestCore(stores, nil)

	_, err := core.ApplyDeployCallback(context.Background(), CallbackReport{
		ServiceID: "svc-2",
		RecordID:  stores.records[0].ID,
		Status:    domain.StatusSucceeded,
	})
	if !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if stores.records[0].Status != domain.StatusInProgress {
		t.Fatalf("foreign callback mutated record")
	}
}

func seedRecord(stores *fakeStores, kind domain.ActionKind, status domain.ActionStatus, detail, handle, environment string) {
	stores.records = append(stores.records, domain.ActionRecord{
		ID:              fmt.Sprintf("rec-%d", len(stores.records)+1),
		ServiceID:       "svc-1",
		Tenant:          "Acme Corp",
		Kind:            kind,
		Environment:     environment,
		Status:          status,
		Detail:          detail,
		ExecutionHandle: handle,
		CreatedAt:       time.Now().UTC().Add(time.Duration(len(stores.records)) * time.Second),
	})
}
