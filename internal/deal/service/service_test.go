package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	authdomain "github.com/smallbiznis/dealflow/internal/auth/domain"
	"github.com/smallbiznis/dealflow/internal/clock"
	customfielddomain "github.com/smallbiznis/dealflow/internal/customfield/domain"
	customfieldrepository "github.com/smallbiznis/dealflow/internal/customfield/repository"
	customfieldservice "github.com/smallbiznis/dealflow/internal/customfield/service"
	"github.com/smallbiznis/dealflow/internal/deal/domain"
	"github.com/smallbiznis/dealflow/internal/deal/repository"
	leaddomain "github.com/smallbiznis/dealflow/internal/lead/domain"
	leadrepository "github.com/smallbiznis/dealflow/internal/lead/repository"
	limitdomain "github.com/smallbiznis/dealflow/internal/limit/domain"
	limitrepository "github.com/smallbiznis/dealflow/internal/limit/repository"
	limitservice "github.com/smallbiznis/dealflow/internal/limit/service"
	lostreasondomain "github.com/smallbiznis/dealflow/internal/lostreason/domain"
	"github.com/smallbiznis/dealflow/internal/observability/metrics"
	orgdomain "github.com/smallbiznis/dealflow/internal/organization/domain"
	orgrepository "github.com/smallbiznis/dealflow/internal/organization/repository"
	"github.com/smallbiznis/dealflow/internal/outbox"
	pipelinedomain "github.com/smallbiznis/dealflow/internal/pipeline/domain"
	pipelinerepository "github.com/smallbiznis/dealflow/internal/pipeline/repository"
	pipelineservice "github.com/smallbiznis/dealflow/internal/pipeline/service"
	plandomain "github.com/smallbiznis/dealflow/internal/plan/domain"
	planrepository "github.com/smallbiznis/dealflow/internal/plan/repository"
	productdomain "github.com/smallbiznis/dealflow/internal/product/domain"
	productrepository "github.com/smallbiznis/dealflow/internal/product/repository"
	"github.com/smallbiznis/dealflow/internal/tenant"
	"github.com/smallbiznis/dealflow/pkg/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	testOrgID  = snowflake.ID(500)
	otherOrgID = snowflake.ID(501)
)

type fixture struct {
	svc          domain.Service
	db           *gorm.DB
	clock        *clock.FakeClock
	node         *snowflake.Node
	pipelines    pipelinedomain.Service
	customFields customfielddomain.Service
	owner        tenant.Context
	pipeline     *pipelinedomain.Pipeline
	lead         *leaddomain.Lead
}

func newFixture(t *testing.T, maxDeals int) *fixture {
	t.Helper()

	conn := db.NewTest(t,
		&plandomain.Plan{}, &orgdomain.Organization{}, &orgdomain.OrganizationMember{}, &authdomain.User{},
		&leaddomain.Lead{}, &pipelinedomain.Pipeline{}, &pipelinedomain.PipelineMember{}, &pipelinedomain.Stage{},
		&productdomain.Product{}, &lostreasondomain.LostReason{},
		&customfielddomain.CustomField{}, &customfielddomain.CustomFieldValue{},
		&domain.Deal{}, &domain.DealProduct{}, &domain.DealEvent{}, &outbox.Event{},
	)
	node, err := snowflake.NewNode(3)
	require.NoError(t, err)
	clk := clock.NewFakeClock(time.Date(2026, 5, 14, 10, 0, 0, 0, time.UTC))
	now := clk.Now()

	require.NoError(t, conn.Create(&plandomain.Plan{
		ID: 1, Name: "start", MaxUsers: 10, MaxDeals: maxDeals, MaxPipelines: 5, MaxContacts: 100, MaxAutomations: 5,
		Features: datatypes.NewJSONSlice([]string{"basic_crm"}), CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, conn.Create(&orgdomain.Organization{ID: testOrgID, Name: "Acme", Slug: "acme", PlanID: 1, CreatedAt: now, UpdatedAt: now}).Error)

	f := &fixture{db: conn, clock: clk, node: node}
	f.owner = f.addMember(t, 10, "Olivia", tenant.RoleOwner, true)

	limits := limitservice.New(limitservice.Params{
		DB:      conn,
		Log:     zap.NewNop(),
		Plans:   planrepository.Provide(),
		Counter: limitrepository.Provide(),
	})
	members := orgrepository.NewRepository(conn)
	f.pipelines = pipelineservice.New(pipelineservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk,
		Repo: pipelinerepository.Provide(), Limits: limits, Members: members,
	})
	f.customFields = customfieldservice.New(customfieldservice.Params{
		DB: conn, Log: zap.NewNop(), GenID: node, Clock: clk, Repo: customfieldrepository.Provide(),
	})
	f.svc = New(Params{
		DB:           conn,
		Log:          zap.NewNop(),
		GenID:        node,
		Clock:        clk,
		Repo:         repository.Provide(),
		Limits:       limits,
		Pipelines:    f.pipelines,
		Stages:       pipelinerepository.Provide(),
		Leads:        leadrepository.Provide(),
		Products:     productrepository.Provide(),
		Members:      members,
		CustomFields: f.customFields,
		Outbox:       outbox.NewPublisher(outbox.Params{DB: conn, GenID: node, Clock: clk}),
		Metrics:      metrics.NewNoop(),
	})

	f.pipeline, err = f.pipelines.Create(context.Background(), f.owner, pipelinedomain.CreatePipelineRequest{Name: "Sales", IsDefault: true})
	require.NoError(t, err)
	f.lead = f.addLead(t, "Carla Mendes", "+5511999990000")
	return f
}

func (f *fixture) addMember(t *testing.T, id snowflake.ID, name string, role tenant.Role, active bool) tenant.Context {
	t.Helper()
	now := f.clock.Now()
	userID := id + 1000
	require.NoError(t, f.db.Create(&authdomain.User{
		ID: userID, Name: name, Email: name + "@example.com", PasswordHash: "x", CreatedAt: now, UpdatedAt: now,
	}).Error)
	require.NoError(t, f.db.Create(&orgdomain.OrganizationMember{
		ID: id, OrgID: testOrgID, UserID: userID, Role: role, IsActive: active, CreatedAt: now, UpdatedAt: now,
	}).Error)
	return tenant.Context{OrgID: testOrgID, UserID: userID, MemberID: id, Role: role}
}

func (f *fixture) addLead(t *testing.T, name, phone string) *leaddomain.Lead {
	t.Helper()
	now := f.clock.Now()
	lead := &leaddomain.Lead{
		ID: f.node.Generate(), OrgID: testOrgID, Name: name, Phone: phone,
		Status: leaddomain.StatusNew, Temperature: leaddomain.TemperatureWarm, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(lead).Error)
	return lead
}

func (f *fixture) addProduct(t *testing.T, orgID snowflake.ID, name string, price int64) *productdomain.Product {
	t.Helper()
	now := f.clock.Now()
	product := &productdomain.Product{
		ID: f.node.Generate(), OrgID: orgID, Name: name, Price: decimal.NewFromInt(price), IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, f.db.Create(product).Error)
	return product
}

func (f *fixture) stage(i int) pipelinedomain.Stage {
	return f.pipeline.Stages[i]
}

func (f *fixture) createDeal(t *testing.T, req domain.CreateRequest) *domain.Deal {
	t.Helper()
	if req.LeadID == 0 {
		req.LeadID = f.lead.ID
	}
	deal, err := f.svc.Create(context.Background(), f.owner, req)
	require.NoError(t, err)
	return deal
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	expected := decimal.RequireFromString(want)
	assert.Truef(t, expected.Equal(got), "want %s, got %s", expected, got)
}

func decimalPtr2(v int64) *decimal.Decimal {
	d := decimal.NewFromInt(v)
	return &d
}

func stringPtr(v string) *string { return &v }

func TestCreateUsesDefaultPipelineAndFirstStage(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	deal := f.createDeal(t, domain.CreateRequest{})
	require.NotNil(t, deal.PipelineID)
	require.NotNil(t, deal.StageID)
	assert.Equal(t, f.pipeline.ID, *deal.PipelineID)
	assert.Equal(t, f.stage(0).ID, *deal.StageID)
	assert.Equal(t, "Deal - Carla Mendes", deal.Title)
	assert.Equal(t, domain.DefaultProbability, deal.Probability)
	assertDecimal(t, "0", deal.Value)
	assert.Equal(t, f.clock.Now(), deal.StageEnteredAt)
	assert.Nil(t, deal.ClosedAt)

	events, err := f.svc.History(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventCreated, events[0].Type)
	assert.Equal(t, domain.CreatedPayload{Title: "Deal - Carla Mendes"}, events[0].Payload)
	require.NotNil(t, events[0].MemberID)
	assert.Equal(t, f.owner.MemberID, *events[0].MemberID)
}

func TestCreateBySystemCallerSkipsEvent(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	system := tenant.Context{OrgID: testOrgID}
	nameless := f.addLead(t, "", "+5511888880000")
	deal, err := f.svc.Create(ctx, system, domain.CreateRequest{LeadID: nameless.ID})
	require.NoError(t, err)
	assert.Equal(t, "Deal - +5511888880000", deal.Title)

	events, err := f.svc.History(ctx, system, deal.ID)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestCreateValidatesReferences(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	other, err := f.pipelines.Create(ctx, f.owner, pipelinedomain.CreatePipelineRequest{Name: "Partners"})
	require.NoError(t, err)
	inactive := f.addMember(t, 20, "Ivan", tenant.RoleMember, false)

	unknown := snowflake.ID(12345)
	foreignStage := other.Stages[0].ID

	cases := []struct {
		name string
		req  domain.CreateRequest
		want error
	}{
		{"unknown lead", domain.CreateRequest{LeadID: unknown}, domain.ErrLeadNotFound},
		{"unknown pipeline", domain.CreateRequest{LeadID: f.lead.ID, PipelineID: &unknown}, domain.ErrPipelineNotFound},
		{"unknown stage", domain.CreateRequest{LeadID: f.lead.ID, StageID: &unknown}, domain.ErrStageNotFound},
		{"stage outside pipeline", domain.CreateRequest{LeadID: f.lead.ID, PipelineID: &f.pipeline.ID, StageID: &foreignStage}, domain.ErrStageNotInPipeline},
		{"inactive assignee", domain.CreateRequest{LeadID: f.lead.ID, AssignedToID: &inactive.MemberID}, domain.ErrInvalidAssignee},
		{"negative value", domain.CreateRequest{LeadID: f.lead.ID, Value: decimalPtr2(-1)}, domain.ErrInvalidValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.Create(ctx, f.owner, tc.req)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	// A stage alone selects its own pipeline.
	deal := f.createDeal(t, domain.CreateRequest{StageID: &foreignStage})
	assert.Equal(t, other.ID, *deal.PipelineID)
}

func TestCreateStopsAtDealLimit(t *testing.T) {
	f := newFixture(t, 1)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.owner, domain.CreateRequest{LeadID: f.lead.ID})
	require.NoError(t, err)

	_, err = f.svc.Create(ctx, f.owner, domain.CreateRequest{LeadID: f.lead.ID})
	require.Error(t, err)
	assert.ErrorIs(t, err, limitdomain.ErrLimitExceeded)

	var count int64
	require.NoError(t, f.db.Model(&domain.Deal{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMoveIntoWonStageClosesDeal(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{Value: decimalPtr2(900)})

	f.clock.Advance(time.Hour)
	moved, err := f.svc.Move(ctx, f.owner, deal.ID, domain.MoveRequest{StageID: f.stage(1).ID})
	require.NoError(t, err)
	assert.Nil(t, moved.ClosedAt)
	assert.Equal(t, f.clock.Now(), moved.StageEnteredAt)

	f.clock.Advance(time.Hour)
	won, err := f.svc.Move(ctx, f.owner, deal.ID, domain.MoveRequest{StageID: f.stage(3).ID, Notes: stringPtr("signed")})
	require.NoError(t, err)
	require.NotNil(t, won.ClosedAt)
	assert.Equal(t, f.clock.Now(), *won.ClosedAt)
	assert.Equal(t, f.stage(3).ID, *won.StageID)

	events, err := f.svc.History(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventWon, events[0].Type)
	assert.Equal(t, domain.EventStageChanged, events[1].Type)
	assert.Equal(t, domain.EventCreated, events[2].Type)

	payload, ok := events[0].Payload.(domain.TransitionPayload)
	require.True(t, ok)
	require.NotNil(t, payload.FromStageID)
	assert.Equal(t, f.stage(1).ID, *payload.FromStageID)
	assert.Equal(t, f.stage(3).ID, payload.ToStageID)
	assert.Equal(t, "Won", payload.StageName)
	require.NotNil(t, payload.Notes)
	assert.Equal(t, "signed", *payload.Notes)

	var published []outbox.Event
	require.NoError(t, f.db.Where("topic = ?", outbox.TopicDealWon).Find(&published).Error)
	require.Len(t, published, 1)
	assert.Equal(t, testOrgID, published[0].OrgID)
}

func TestMoveIntoLostStageRecordsReason(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})

	reason := &lostreasondomain.LostReason{ID: f.node.Generate(), OrgID: testOrgID, Name: "Price", CreatedAt: f.clock.Now()}
	require.NoError(t, f.db.Create(reason).Error)

	lost, err := f.svc.Move(ctx, f.owner, deal.ID, domain.MoveRequest{StageID: f.stage(4).ID, LostReasonID: &reason.ID})
	require.NoError(t, err)
	assert.Equal(t, f.stage(4).ID, *lost.StageID)
	require.NotNil(t, lost.ClosedAt)
	require.NotNil(t, lost.LostReasonID)
	assert.Equal(t, reason.ID, *lost.LostReasonID)

	events, err := f.svc.History(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventLost, events[0].Type)
	payload := events[0].Payload.(domain.TransitionPayload)
	assert.Equal(t, f.stage(0).ID, *payload.FromStageID)
	assert.Equal(t, f.stage(4).ID, payload.ToStageID)

	detail, err := f.svc.Get(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.LostReason)
	assert.Equal(t, "Price", detail.LostReason.Name)

	reopened, err := f.svc.Move(ctx, f.owner, deal.ID, domain.MoveRequest{StageID: f.stage(2).ID})
	require.NoError(t, err)
	assert.Nil(t, reopened.ClosedAt)
	assert.Nil(t, reopened.LostReasonID)

	stored, err := f.svc.Get(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	assert.Nil(t, stored.ClosedAt)
	assert.Nil(t, stored.LostReasonID)
	assert.Equal(t, "Negotiation", stored.Stage.Name)
}

func TestMoveIntoWonClearsLostReason(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})

	reason := &lostreasondomain.LostReason{ID: f.node.Generate(), OrgID: testOrgID, Name: "Timing", CreatedAt: f.clock.Now()}
	require.NoError(t, f.db.Create(reason).Error)
	_, err := f.svc.Move(ctx, f.owner, deal.ID, domain.MoveRequest{StageID: f.stage(4).ID, LostReasonID: &reason.ID})
	require.NoError(t, err)

	won, err := f.svc.Move(ctx, f.owner, deal.ID, domain.MoveRequest{StageID: f.stage(3).ID})
	require.NoError(t, err)
	assert.NotNil(t, won.ClosedAt)
	assert.Nil(t, won.LostReasonID)
}

func TestMoveRejectsForeignReferences(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})

	now := f.clock.Now()
	foreignPipeline := &pipelinedomain.Pipeline{ID: f.node.Generate(), OrgID: otherOrgID, Name: "Theirs", Color: "#000000", Visibility: pipelinedomain.VisibilityPublic, CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.db.Create(foreignPipeline).Error)
	foreignStage := &pipelinedomain.Stage{ID: f.node.Generate(), PipelineID: foreignPipeline.ID, Name: "X", Color: "#000000", CreatedAt: now, UpdatedAt: now}
	require.NoError(t, f.db.Create(foreignStage).Error)
	foreignReason := &lostreasondomain.LostReason{ID: f.node.Generate(), OrgID: otherOrgID, Name: "Theirs", CreatedAt: now}
	require.NoError(t, f.db.Create(foreignReason).Error)

	_, err := f.svc.Move(ctx, f.owner, deal.ID, domain.MoveRequest{StageID: foreignStage.ID})
	assert.ErrorIs(t, err, domain.ErrStageNotFound)

	_, err = f.svc.Move(ctx, f.owner, deal.ID, domain.MoveRequest{StageID: f.stage(4).ID, LostReasonID: &foreignReason.ID})
	assert.ErrorIs(t, err, domain.ErrLostReasonNotFound)

	_, err = f.svc.Move(ctx, f.owner, 999, domain.MoveRequest{StageID: f.stage(1).ID})
	assert.ErrorIs(t, err, domain.ErrDealNotFound)

	outsider := tenant.Context{OrgID: otherOrgID, MemberID: 1, Role: tenant.RoleOwner}
	_, err = f.svc.Move(ctx, outsider, deal.ID, domain.MoveRequest{StageID: foreignStage.ID})
	assert.ErrorIs(t, err, domain.ErrDealNotFound)

	events, err := f.svc.History(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestAssign(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})
	seller := f.addMember(t, 30, "Sam", tenant.RoleMember, true)
	gone := f.addMember(t, 31, "Gina", tenant.RoleMember, false)

	assigned, err := f.svc.Assign(ctx, f.owner, deal.ID, domain.AssignRequest{AssignedToID: &seller.MemberID})
	require.NoError(t, err)
	require.NotNil(t, assigned.AssignedToID)
	assert.Equal(t, seller.MemberID, *assigned.AssignedToID)

	_, err = f.svc.Assign(ctx, f.owner, deal.ID, domain.AssignRequest{AssignedToID: &gone.MemberID})
	assert.ErrorIs(t, err, domain.ErrInvalidAssignee)

	detail, err := f.svc.Get(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.AssignedTo)
	assert.Equal(t, "Sam", detail.AssignedTo.Name)

	unassigned, err := f.svc.Assign(ctx, f.owner, deal.ID, domain.AssignRequest{})
	require.NoError(t, err)
	assert.Nil(t, unassigned.AssignedToID)

	events, err := f.svc.History(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, domain.EventAssigned, events[1].Type)
	assert.Equal(t, domain.AssignedPayload{AssignedToID: &seller.MemberID}, events[1].Payload)
}

func TestUpdateKeepsStageConsistentWithPipeline(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})

	partners, err := f.pipelines.Create(ctx, f.owner, pipelinedomain.CreatePipelineRequest{Name: "Partners"})
	require.NoError(t, err)

	_, err = f.svc.Update(ctx, f.owner, deal.ID, domain.UpdateRequest{StageID: &partners.Stages[1].ID})
	assert.ErrorIs(t, err, domain.ErrStageNotInPipeline)

	probability := 120
	_, err = f.svc.Update(ctx, f.owner, deal.ID, domain.UpdateRequest{Probability: &probability})
	assert.ErrorIs(t, err, domain.ErrInvalidProbability)

	f.clock.Advance(time.Minute)
	updated, err := f.svc.Update(ctx, f.owner, deal.ID, domain.UpdateRequest{
		Title:      stringPtr("Renewal"),
		Value:      decimalPtr2(1500),
		PipelineID: &partners.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "Renewal", updated.Title)
	assertDecimal(t, "1500", updated.Value)
	assert.Equal(t, partners.ID, *updated.PipelineID)
	assert.Equal(t, partners.Stages[0].ID, *updated.StageID)
	assert.Equal(t, f.clock.Now(), updated.StageEnteredAt)

	events, err := f.svc.History(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestUpdateCannotCloseOrReopenDeal(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})
	won, lost := f.stage(3), f.stage(4)
	require.True(t, won.IsWon)
	require.True(t, lost.IsLost)

	_, err := f.svc.Update(ctx, f.owner, deal.ID, domain.UpdateRequest{StageID: &won.ID})
	assert.ErrorIs(t, err, domain.ErrTerminalStageChange)
	_, err = f.svc.Update(ctx, f.owner, deal.ID, domain.UpdateRequest{StageID: &lost.ID})
	assert.ErrorIs(t, err, domain.ErrTerminalStageChange)

	current, err := f.svc.Get(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	assert.Equal(t, f.stage(0).ID, *current.StageID)
	assert.Nil(t, current.ClosedAt)

	closed, err := f.svc.Move(ctx, f.owner, deal.ID, domain.MoveRequest{StageID: won.ID})
	require.NoError(t, err)
	require.NotNil(t, closed.ClosedAt)

	open := f.stage(1)
	_, err = f.svc.Update(ctx, f.owner, deal.ID, domain.UpdateRequest{StageID: &open.ID})
	assert.ErrorIs(t, err, domain.ErrTerminalStageChange)

	// Fields other than the stage stay editable on a closed deal.
	renamed, err := f.svc.Update(ctx, f.owner, deal.ID, domain.UpdateRequest{Title: stringPtr("Closed renewal")})
	require.NoError(t, err)
	assert.Equal(t, "Closed renewal", renamed.Title)
	assert.Equal(t, won.ID, *renamed.StageID)
	assert.NotNil(t, renamed.ClosedAt)
}

func TestCreateWithoutDefaultPipelineWritesNothing(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	require.NoError(t, f.pipelines.Delete(ctx, f.owner, f.pipeline.ID))

	unknown := snowflake.ID(98765)
	_, err := f.svc.Create(ctx, f.owner, domain.CreateRequest{LeadID: f.lead.ID, AssignedToID: &unknown})
	assert.ErrorIs(t, err, domain.ErrInvalidAssignee)

	_, err = f.svc.Create(ctx, f.owner, domain.CreateRequest{LeadID: f.lead.ID})
	assert.ErrorIs(t, err, domain.ErrPipelineNotFound)

	var pipelines, deals int64
	require.NoError(t, f.db.Model(&pipelinedomain.Pipeline{}).Count(&pipelines).Error)
	require.NoError(t, f.db.Model(&domain.Deal{}).Count(&deals).Error)
	assert.Zero(t, pipelines)
	assert.Zero(t, deals)
}

func TestDeleteCascades(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})
	product := f.addProduct(t, testOrgID, "Seat", 10)

	_, err := f.svc.AddProduct(ctx, f.owner, deal.ID, domain.AddProductRequest{ProductID: product.ID})
	require.NoError(t, err)
	field, err := f.customFields.Create(ctx, f.owner, customfielddomain.CreateRequest{
		Entity: customfielddomain.EntityDeal, Name: "source", Label: "Source", Type: customfielddomain.TypeText,
	})
	require.NoError(t, err)
	_, err = f.customFields.SetValues(ctx, f.owner, deal.ID, []customfielddomain.ValueInput{{CustomFieldID: field.ID, Value: "web"}})
	require.NoError(t, err)

	require.NoError(t, f.svc.Delete(ctx, f.owner, deal.ID))

	for _, model := range []any{&domain.Deal{}, &domain.DealProduct{}, &domain.DealEvent{}, &customfielddomain.CustomFieldValue{}} {
		var count int64
		require.NoError(t, f.db.Model(model).Count(&count).Error)
		assert.Zero(t, count)
	}

	_, err = f.svc.Get(ctx, f.owner, deal.ID)
	assert.ErrorIs(t, err, domain.ErrDealNotFound)
	assert.ErrorIs(t, f.svc.Delete(ctx, f.owner, deal.ID), domain.ErrDealNotFound)
}

func TestGetIncludesRelations(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	seller := f.addMember(t, 40, "Rita", tenant.RoleManager, true)
	deal := f.createDeal(t, domain.CreateRequest{AssignedToID: &seller.MemberID})

	field, err := f.customFields.Create(ctx, f.owner, customfielddomain.CreateRequest{
		Entity: customfielddomain.EntityDeal, Name: "budget", Label: "Budget", Type: customfielddomain.TypeNumber,
	})
	require.NoError(t, err)
	_, err = f.customFields.SetValues(ctx, f.owner, deal.ID, []customfielddomain.ValueInput{{CustomFieldID: field.ID, Value: "5000"}})
	require.NoError(t, err)

	detail, err := f.svc.Get(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	require.NotNil(t, detail.Lead)
	assert.Equal(t, "Carla Mendes", detail.Lead.Name)
	require.NotNil(t, detail.AssignedTo)
	assert.Equal(t, "Rita", detail.AssignedTo.Name)
	require.NotNil(t, detail.Pipeline)
	assert.Len(t, detail.Pipeline.Stages, 5)
	require.NotNil(t, detail.Stage)
	assert.Equal(t, "Qualification", detail.Stage.Name)
	assert.Empty(t, detail.Products)
	require.Len(t, detail.CustomFields, 1)
	assert.Equal(t, "5000", detail.CustomFields[0].Value)

	outsider := tenant.Context{OrgID: otherOrgID, MemberID: 1, Role: tenant.RoleOwner}
	_, err = f.svc.Get(ctx, outsider, deal.ID)
	assert.ErrorIs(t, err, domain.ErrDealNotFound)
}

func TestListFiltersSortsAndPages(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	bruno := f.addLead(t, "Bruno Alves", "+5511777770000")

	small := f.createDeal(t, domain.CreateRequest{Title: stringPtr("Small"), Value: decimalPtr2(100)})
	f.clock.Advance(time.Minute)
	large := f.createDeal(t, domain.CreateRequest{Title: stringPtr("Large"), Value: decimalPtr2(5000)})
	f.clock.Advance(time.Minute)
	medium := f.createDeal(t, domain.CreateRequest{LeadID: bruno.ID, Title: stringPtr("Medium"), Value: decimalPtr2(800)})

	all, err := f.svc.List(ctx, f.owner, domain.ListRequest{})
	require.NoError(t, err)
	require.Len(t, all.Deals, 3)
	assert.Equal(t, []snowflake.ID{medium.ID, large.ID, small.ID}, dealIDs(all.Deals))
	assert.Equal(t, int64(3), all.Meta.Total)
	assert.Equal(t, 20, all.Meta.Limit)
	assert.Equal(t, "Bruno Alves", all.Deals[0].LeadName)
	require.NotNil(t, all.Deals[0].StageName)
	assert.Equal(t, "Qualification", *all.Deals[0].StageName)

	byValue, err := f.svc.List(ctx, f.owner, domain.ListRequest{SortBy: "value", SortOrder: "asc"})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{small.ID, medium.ID, large.ID}, dealIDs(byValue.Deals))

	search, err := f.svc.List(ctx, f.owner, domain.ListRequest{Search: "bruno"})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{medium.ID}, dealIDs(search.Deals))

	minValue := 500.0
	rich, err := f.svc.List(ctx, f.owner, domain.ListRequest{MinValue: &minValue, SortBy: "value", SortOrder: "desc"})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{large.ID, medium.ID}, dealIDs(rich.Deals))

	page, err := f.svc.List(ctx, f.owner, domain.ListRequest{Page: 2, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, []snowflake.ID{small.ID}, dealIDs(page.Deals))
	assert.Equal(t, 2, page.Meta.TotalPages)

	byLead, err := f.svc.ListByLead(ctx, f.owner, f.lead.ID)
	require.NoError(t, err)
	assert.Len(t, byLead, 2)
}

func TestBoardGroupsDealsByStage(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()

	first := f.createDeal(t, domain.CreateRequest{Value: decimalPtr2(100)})
	f.createDeal(t, domain.CreateRequest{Value: decimalPtr2(200)})
	_, err := f.svc.Move(ctx, f.owner, first.ID, domain.MoveRequest{StageID: f.stage(2).ID})
	require.NoError(t, err)

	board, err := f.svc.Board(ctx, f.owner, f.pipeline.ID)
	require.NoError(t, err)
	require.Len(t, board.Columns, 5)
	assert.Equal(t, "Qualification", board.Columns[0].Stage.Name)
	assert.Equal(t, 1, board.Columns[0].Count)
	assertDecimal(t, "200", board.Columns[0].Value)
	assert.Equal(t, 1, board.Columns[2].Count)
	assert.Equal(t, first.ID, board.Columns[2].Deals[0].ID)
	assert.Empty(t, board.Columns[4].Deals)

	_, err = f.svc.Board(ctx, f.owner, 999)
	assert.ErrorIs(t, err, domain.ErrPipelineNotFound)
}

func TestRecordActivity(t *testing.T) {
	f := newFixture(t, 50)
	ctx := context.Background()
	deal := f.createDeal(t, domain.CreateRequest{})

	event, err := f.svc.RecordActivity(ctx, f.owner, deal.ID, domain.ActivityRequest{ActivityID: 77, Kind: "CALL", Title: "Intro call"})
	require.NoError(t, err)
	assert.Equal(t, domain.EventActivityAdded, event.Type)

	events, err := f.svc.History(ctx, f.owner, deal.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, domain.ActivityAddedPayload{ActivityID: 77, Kind: "CALL", Title: "Intro call"}, events[0].Payload)
}

func dealIDs(deals []domain.DealSummary) []snowflake.ID {
	ids := make([]snowflake.ID, 0, len(deals))
	for _, d := range deals {
		ids = append(ids, d.ID)
	}
	return ids
}
