package models

import "testing"

func TestPlayerStatus(t *testing.T) {
	p := &Player{Activated: 1700000000}
	if !p.IsActive() || p.IsBanned() {
		t.Fatalf("expected active player")
	}
	p.Activated = -1
	if p.IsActive() || !p.IsBanned() {
		t.Fatalf("expected banned player")
	}
}

func TestPlayerCan(t *testing.T) {
	p := &Player{}
	if p.Can(PermInventoryGrant) {
		t.Fatalf("player without permissions must not grant items")
	}
	p.Permissions = PermInventoryGrant | 1<<5
	if !p.Can(PermInventoryGrant) {
		t.Fatalf("expected grant permission")
	}
}
