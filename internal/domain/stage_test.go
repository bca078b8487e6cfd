package domain

import (
	"errors"
	"testing"
	"time"
)

func TestStageTransitions(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	t.Run("pending to completed", func(t *testing.T) {
		t.Parallel()
		c := Card{}
		conf := 0.9
		if err := c.CompleteStage(StageClassify, &conf, now); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		st := c.ProcessingStatus[StageClassify]
		if st.State != StageStateCompleted {
			t.Errorf("Expected completed, got %s", st.State)
		}
		if st.Confidence == nil || *st.Confidence != 0.9 {
			t.Error("Expected confidence to be recorded")
		}
		if st.CompletedAt == nil || !st.CompletedAt.Equal(now) {
			t.Error("Expected completion time to be recorded")
		}
	})

	t.Run("pending to failed", func(t *testing.T) {
		t.Parallel()
		c := Card{}
		if err := c.FailStage(StageMetadata); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if c.StageState(StageMetadata) != StageStateFailed {
			t.Errorf("Expected failed, got %s", c.StageState(StageMetadata))
		}
	})

	t.Run("completing twice is a no-op", func(t *testing.T) {
		t.Parallel()
		c := Card{}
		if err := c.CompleteStage(StageClassify, nil, now); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		later := now.Add(time.Hour)
		if err := c.CompleteStage(StageClassify, nil, later); err != nil {
			t.Fatalf("Expected no error on repeat completion, got %v", err)
		}
		st := c.ProcessingStatus[StageClassify]
		if st.CompletedAt == nil || !st.CompletedAt.Equal(now) {
			t.Error("Expected repeat completion to leave original timestamp")
		}
	})

	t.Run("no backward move without reset", func(t *testing.T) {
		t.Parallel()
		c := Card{}
		if err := c.CompleteStage(StageCategorize, nil, now); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if err := c.FailStage(StageCategorize); !errors.Is(err, ErrStageTransition) {
			t.Errorf("Expected %v, got %v", ErrStageTransition, err)
		}

		c2 := Card{}
		if err := c2.FailStage(StageCategorize); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if err := c2.CompleteStage(StageCategorize, nil, now); !errors.Is(err, ErrStageTransition) {
			t.Errorf("Expected %v, got %v", ErrStageTransition, err)
		}
	})

	t.Run("reset returns stage to pending", func(t *testing.T) {
		t.Parallel()
		c := Card{}
		conf := 0.5
		if err := c.CompleteStage(StageMetadata, &conf, now); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if err := c.ResetStage(StageMetadata); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		st := c.ProcessingStatus[StageMetadata]
		if st.State != StageStatePending {
			t.Errorf("Expected pending after reset, got %s", st.State)
		}
		if st.Confidence != nil || st.CompletedAt != nil {
			t.Error("Expected reset to clear confidence and completion time")
		}
		// A reset stage can complete again.
		if err := c.CompleteStage(StageMetadata, nil, now); err != nil {
			t.Errorf("Expected completion after reset, got %v", err)
		}
	})

	t.Run("confidence must be within range", func(t *testing.T) {
		t.Parallel()
		c := Card{}
		bad := 1.5
		if err := c.CompleteStage(StageClassify, &bad, now); !errors.Is(err, ErrConfidenceRange) {
			t.Errorf("Expected %v, got %v", ErrConfidenceRange, err)
		}
		neg := -0.1
		if err := c.CompleteStage(StageClassify, &neg, now); !errors.Is(err, ErrConfidenceRange) {
			t.Errorf("Expected %v, got %v", ErrConfidenceRange, err)
		}
	})

	t.Run("unknown stage is rejected", func(t *testing.T) {
		t.Parallel()
		c := Card{}
		if err := c.InitStage(Stage("transcode")); !errors.Is(err, ErrStageUnknown) {
			t.Errorf("Expected %v, got %v", ErrStageUnknown, err)
		}
		if err := c.FailStage(Stage("transcode")); !errors.Is(err, ErrStageUnknown) {
			t.Errorf("Expected %v, got %v", ErrStageUnknown, err)
		}
	})
}

func TestInitStage(t *testing.T) {
	t.Parallel()
	now := time.Now().UTC()

	c := Card{}
	if err := c.InitStage(StageClassify); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if c.StageState(StageClassify) != StageStatePending {
		t.Errorf("Expected pending, got %s", c.StageState(StageClassify))
	}

	// Init never clobbers a recorded status.
	if err := c.CompleteStage(StageClassify, nil, now); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if err := c.InitStage(StageClassify); err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if c.StageState(StageClassify) != StageStateCompleted {
		t.Error("Expected init to leave completed stage untouched")
	}
}

func TestStageStateDefaultsToPending(t *testing.T) {
	t.Parallel()
	c := Card{}
	if c.StageState(StageRenderables) != StageStatePending {
		t.Errorf("Expected pending for unrecorded stage, got %s", c.StageState(StageRenderables))
	}
}

func TestAllStagesOrder(t *testing.T) {
	t.Parallel()
	want := []Stage{StageClassify, StageCategorize, StageMetadata, StageRenderables}
	got := AllStages()
	if len(got) != len(want) {
		t.Fatalf("Expected %d stages, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Expected stage %d to be %s, got %s", i, want[i], got[i])
		}
	}
}
