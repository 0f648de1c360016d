package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"pgregory.net/rapid"

	"github.com/conorfennell/memnotes/internal/domain"
)

func TestSelectionPoliciesPartitionTheRandomPool(t *testing.T) {
	dir := t.TempDir()
	run := 0

	rapid.Check(t, func(rt *rapid.T) {
		ctx := context.Background()
		run++
		db, err := Open(filepath.Join(dir, fmt.Sprintf("prop%d.db", run)))
		if err != nil {
			rt.Fatalf("open: %v", err)
		}
		defer db.Close()
		if _, err := db.CreateTag(ctx, "t"); err != nil {
			rt.Fatalf("create tag: %v", err)
		}

		count := rapid.IntRange(1, 6).Draw(rt, "notes")
		var ids []int64
		for i := 0; i < count; i++ {
			id, err := db.CreateNote(ctx, quizInput(fmt.Sprintf("n%d", i), "t"))
			if err != nil {
				rt.Fatalf("create note: %v", err)
			}
			ids = append(ids, id)
		}
		answers := rapid.SliceOfN(rapid.IntRange(0, count-1), 0, 20).Draw(rt, "answers")
		for _, i := range answers {
			correct := rapid.Bool().Draw(rt, "correct")
			if err := db.RecordAnswer(ctx, ids[i], correct, time.Now()); err != nil {
				rt.Fatalf("record: %v", err)
			}
		}

		pool := map[int64]domain.Note{}
		all, err := db.SelectQuestions(ctx, domain.PolicyRandom, count)
		if err != nil {
			rt.Fatalf("random: %v", err)
		}
		for _, n := range all {
			if n.TimesCorrect > n.TimesChallenged {
				rt.Fatalf("note %d: correct %d > challenged %d", n.ID, n.TimesCorrect, n.TimesChallenged)
			}
			pool[n.ID] = n
		}
		if len(pool) != count {
			rt.Fatalf("random drew %d of %d notes", len(pool), count)
		}

		weakest, err := db.SelectQuestions(ctx, domain.PolicyWeakest, count)
		if err != nil {
			rt.Fatalf("weakest: %v", err)
		}
		prev := -1.0
		for _, n := range weakest {
			if _, ok := pool[n.ID]; !ok || n.TimesChallenged == 0 {
				rt.Fatalf("weakest drew note %d outside the tested pool", n.ID)
			}
			ratio, _ := n.SuccessRatio()
			if ratio < prev {
				rt.Fatalf("weakest not ordered by ratio: %v after %v", ratio, prev)
			}
			prev = ratio
		}

		untested, err := db.SelectQuestions(ctx, domain.PolicyUntested, count)
		if err != nil {
			rt.Fatalf("untested: %v", err)
		}
		for _, n := range untested {
			if _, ok := pool[n.ID]; !ok || n.TimesChallenged != 0 {
				rt.Fatalf("untested drew note %d outside the untested pool", n.ID)
			}
		}
		if len(weakest)+len(untested) != count {
			rt.Fatalf("weakest %d + untested %d != %d", len(weakest), len(untested), count)
		}
	})
}
