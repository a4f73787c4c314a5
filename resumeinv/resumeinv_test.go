package resumeinv

import "testing"

// TestResumeAdmissionScenario: two queues on the same domain conflict;
// the first wins and the second is blocked.
func TestResumeAdmissionScenario(t *testing.T) {
	queues := []QueueCandidate{
		{ID: "1", URL: "https://a.com"},
		{ID: "2", URL: "https://a.com/x"},
		{ID: "3", URL: "https://b.com"},
	}
	res := PlanResumeQueues(queues, 3, nil, nil)

	if got := res.Selected; len(got) != 2 || got[0] != "1" || got[1] != "3" {
		t.Fatalf("selected = %v, want [1 3]", got)
	}
	if d := res.Info["2"]; d.Status != "blocked" || d.Reason != ReasonDomainConflict {
		t.Fatalf("entry 2 = %+v, want blocked/domain-conflict", d)
	}
}

func TestResumeAdmissionMissingSource(t *testing.T) {
	res := PlanResumeQueues([]QueueCandidate{{ID: "1"}}, 5, nil, nil)
	if d := res.Info["1"]; d.Status != "blocked" || d.Reason != ReasonMissingSource {
		t.Fatalf("got %+v, want blocked/missing-source", d)
	}
}

func TestResumeAdmissionAlreadyRunning(t *testing.T) {
	res := PlanResumeQueues([]QueueCandidate{{ID: "1", URL: "https://a.com"}}, 5, []string{"1"}, nil)
	if d := res.Info["1"]; d.Status != "blocked" || d.Reason != ReasonAlreadyRunning {
		t.Fatalf("got %+v, want blocked/already-running", d)
	}
}

func TestResumeAdmissionCapacityExceeded(t *testing.T) {
	queues := []QueueCandidate{
		{ID: "1", URL: "https://a.com"},
		{ID: "2", URL: "https://b.com"},
	}
	res := PlanResumeQueues(queues, 1, nil, nil)
	if len(res.Selected) != 1 || res.Selected[0] != "1" {
		t.Fatalf("selected = %v, want [1]", res.Selected)
	}
	if d := res.Info["2"]; d.Status != "queued" || d.Reason != ReasonCapacityExceeded {
		t.Fatalf("got %+v, want queued/capacity-exceeded", d)
	}
}

func TestResumeAdmissionRunningDomain(t *testing.T) {
	res := PlanResumeQueues([]QueueCandidate{{ID: "1", URL: "https://a.com"}}, 5, nil, []string{"a.com"})
	if d := res.Info["1"]; d.Status != "blocked" || d.Reason != ReasonDomainConflict {
		t.Fatalf("got %+v, want blocked/domain-conflict", d)
	}
}

// TestResumeAdmissionPurity is the plan-purity property:
// PlanResumeQueues is a pure function of its inputs.
func TestResumeAdmissionPurity(t *testing.T) {
	queues := []QueueCandidate{{ID: "1", URL: "https://a.com"}, {ID: "2", URL: "https://b.com"}}
	r1 := PlanResumeQueues(queues, 2, nil, nil)
	r2 := PlanResumeQueues(queues, 2, nil, nil)
	if len(r1.Selected) != len(r2.Selected) || r1.Selected[0] != r2.Selected[0] || r1.Selected[1] != r2.Selected[1] {
		t.Fatalf("PlanResumeQueues is not pure: %v vs %v", r1.Selected, r2.Selected)
	}
}
