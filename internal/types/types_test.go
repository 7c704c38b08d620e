package types

import (
	"testing"
	"time"
)

func TestRuleValidate(t *testing.T) {
	valid := Rule{
		Name:           "OrderTotalCheck",
		OwnerGroup:     "BG1",
		Status:         StatusInactive,
		ApprovalStatus: ApprovalInProgress,
		CriticalScope:  ScopeNone,
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("valid rule failed validation: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Rule)
	}{
		{"empty name", func(r *Rule) { r.Name = "" }},
		{"name too long", func(r *Rule) {
			long := make([]byte, 201)
			for i := range long {
				long[i] = 'x'
			}
			r.Name = string(long)
		}},
		{"empty owner group", func(r *Rule) { r.OwnerGroup = "" }},
		{"bad status", func(r *Rule) { r.Status = "SLEEPING" }},
		{"bad approval status", func(r *Rule) { r.ApprovalStatus = "MAYBE" }},
		{"bad critical scope", func(r *Rule) { r.CriticalScope = "UNIVERSE" }},
		{"bad operation kind", func(r *Rule) { r.OperationKind = "MERGE" }},
		{"effective window inverted", func(r *Rule) {
			start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
			end := start.Add(-time.Hour)
			r.EffectiveStart = &start
			r.EffectiveEnd = &end
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			if err := r.Validate(); err == nil {
				t.Errorf("expected validation error, got nil")
			}
		})
	}
}

func TestRuleSetDefaults(t *testing.T) {
	r := Rule{Name: "R", OwnerGroup: "BG1"}
	r.SetDefaults()

	if r.Status != StatusInactive {
		t.Errorf("default status = %s, want INACTIVE", r.Status)
	}
	if r.ApprovalStatus != ApprovalInProgress {
		t.Errorf("default approval status = %s, want APPROVAL_IN_PROGRESS", r.ApprovalStatus)
	}
	if r.CriticalScope != ScopeNone {
		t.Errorf("default critical scope = %s, want NONE", r.CriticalScope)
	}
	if r.Version != 1 {
		t.Errorf("default version = %d, want 1", r.Version)
	}
}

func TestRuleIsCritical(t *testing.T) {
	tests := []struct {
		name     string
		critical bool
		global   bool
		scope    CriticalScope
		want     bool
	}{
		{"critical with group scope", true, false, ScopeGroup, true},
		{"global with global scope", false, true, ScopeGlobal, true},
		{"critical but scope none", true, false, ScopeNone, false},
		{"neither flag set", false, false, ScopeGroup, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Rule{CriticalRule: tt.critical, IsGlobal: tt.global, CriticalScope: tt.scope}
			if got := r.IsCritical(); got != tt.want {
				t.Errorf("IsCritical() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestEnumValidity(t *testing.T) {
	for _, s := range []RuleStatus{StatusInactive, StatusActive, StatusDeactivateInProgress, StatusDeleteInProgress} {
		if !s.IsValid() {
			t.Errorf("status %s should be valid", s)
		}
	}
	if RuleStatus("ARCHIVED").IsValid() {
		t.Error("ARCHIVED should not be a valid status")
	}

	for _, a := range []ApprovalStatus{ApprovalInProgress, ApprovalApproved, ApprovalRejected,
		ApprovalForceActivated, ApprovalForceDeactivated, ApprovalDeactivateInProgress, ApprovalDeleteInProgress} {
		if !a.IsValid() {
			t.Errorf("approval status %s should be valid", a)
		}
	}
	if ApprovalStatus("PENDING").IsValid() {
		t.Error("PENDING should not be a valid approval status")
	}

	for _, k := range []OperationKind{OpSelect, OpInsert, OpUpdate, OpDelete, OpDecisionTable, OpOther} {
		if !k.IsValid() {
			t.Errorf("operation kind %s should be valid", k)
		}
	}
	if !OpInsert.IsWrite() || !OpUpdate.IsWrite() || !OpDelete.IsWrite() {
		t.Error("INSERT/UPDATE/DELETE should be write kinds")
	}
	if OpSelect.IsWrite() || OpDecisionTable.IsWrite() {
		t.Error("SELECT/DECISION_TABLE should not be write kinds")
	}

	for _, f := range []ApprovedFlag{FlagPending, FlagApproved, FlagRejected} {
		if !f.IsValid() {
			t.Errorf("approved flag %d should be valid", f)
		}
	}
	if ApprovedFlag(3).IsValid() {
		t.Error("flag 3 should not be valid")
	}

	for _, v := range []ValidationType{ValidationNotNull, ValidationRange, ValidationRegex, ValidationForeignKey} {
		if !v.IsValid() {
			t.Errorf("validation type %s should be valid", v)
		}
	}
	if ValidationType("CHECKSUM").IsValid() {
		t.Error("CHECKSUM should not be a valid validation type")
	}
}

func TestDeriveLifecycleState(t *testing.T) {
	tests := []struct {
		status   RuleStatus
		approval ApprovalStatus
		want     string
	}{
		{StatusActive, ApprovalApproved, LifecycleActive},
		{StatusActive, ApprovalForceActivated, LifecycleActive},
		{StatusDeactivateInProgress, ApprovalDeactivateInProgress, LifecycleDeactivatePending},
		{StatusDeleteInProgress, ApprovalDeleteInProgress, LifecycleDeletePending},
		{StatusInactive, ApprovalInProgress, LifecycleUnderApproval},
		{StatusInactive, ApprovalRejected, LifecycleInactive},
		{StatusInactive, ApprovalApproved, LifecycleInactive},
	}
	for _, tt := range tests {
		if got := DeriveLifecycleState(tt.status, tt.approval); got != tt.want {
			t.Errorf("DeriveLifecycleState(%s, %s) = %s, want %s", tt.status, tt.approval, got, tt.want)
		}
	}
}

func TestActor(t *testing.T) {
	admin := Actor{UserID: "root", Group: AdminGroup}
	if !admin.IsAdmin() {
		t.Error("Admin-group actor should be admin")
	}
	user := Actor{UserID: "alice", Group: "BG1"}
	if user.IsAdmin() {
		t.Error("BG1 actor should not be admin")
	}
	if !(Actor{}).IsZero() {
		t.Error("empty actor should be zero")
	}
	if user.IsZero() {
		t.Error("alice should not be zero")
	}
	if got := user.String(); got != "alice (BG1)" {
		t.Errorf("String() = %q", got)
	}
}

func TestLockExpired(t *testing.T) {
	now := time.Now()
	l := Lock{ExpiresAt: now.Add(time.Minute)}
	if l.Expired(now) {
		t.Error("future expiry should not be expired")
	}
	l.ExpiresAt = now.Add(-time.Second)
	if !l.Expired(now) {
		t.Error("past expiry should be expired")
	}
}
