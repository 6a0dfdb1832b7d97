package kstats

import "testing"

func TestCounterGatedByEnabled(t *testing.T) {
	Enabled = false
	var c Counter
	c.Inc()
	c.Add(5)
	if c.Get() != 0 {
		t.Fatalf("Get = %d, want 0 while disabled", c.Get())
	}

	Enabled = true
	defer func() { Enabled = false }()
	c.Inc()
	c.Add(5)
	if c.Get() != 6 {
		t.Fatalf("Get = %d, want 6 while enabled", c.Get())
	}
}

func TestBuildProfileOneSamplePerProcess(t *testing.T) {
	samples := []ProcSample{
		{Pid: 1, Userns: 100, Sysns: 20},
		{Pid: 2, Userns: 50, Sysns: 5},
	}
	p := BuildProfile(samples)
	if len(p.Sample) != 2 {
		t.Fatalf("len(Sample) = %d, want 2", len(p.Sample))
	}
	if len(p.SampleType) != 2 {
		t.Fatalf("len(SampleType) = %d, want 2 (user, sys)", len(p.SampleType))
	}
	got := p.Sample[0].Value
	if got[0] != 100 || got[1] != 20 {
		t.Fatalf("Sample[0].Value = %v, want [100 20]", got)
	}
	if pid := p.Sample[0].Label["pid"]; len(pid) != 1 || pid[0] != "1" {
		t.Fatalf("Sample[0].Label[pid] = %v, want [\"1\"]", pid)
	}
}
