package kaccnt

import "testing"

func TestAddUserAddSysSnapshot(t *testing.T) {
	var a Accnt
	a.AddUser(10)
	a.AddUser(5)
	a.AddSys(3)
	userns, sysns := a.Snapshot()
	if userns != 15 || sysns != 3 {
		t.Fatalf("Snapshot = (%d, %d), want (15, 3)", userns, sysns)
	}
}
