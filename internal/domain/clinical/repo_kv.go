package clinical

import (
	"context"
	"fmt"

	"github.com/Anup697028/mediwise-chat/internal/platform/localdb"
)

type consultationRepoKV struct {
	db *localdb.Database
}

func NewConsultationRepoKV(db *localdb.Database) ConsultationRepository {
	return &consultationRepoKV{db: db}
}

func (r *consultationRepoKV) List(ctx context.Context) ([]Consultation, error) {
	return localdb.GetList[Consultation](ctx, r.db, localdb.Consultations)
}

func (r *consultationRepoKV) Create(ctx context.Context, c *Consultation) error {
	applied, err := localdb.UpdateList(ctx, r.db, localdb.Consultations, func(items []Consultation) ([]Consultation, error) {
		return append(items, *c), nil
	})
	if err != nil {
		return err
	}
	if !applied {
		if err := r.db.Save(ctx, localdb.Consultations, []Consultation{*c}); err != nil {
			return fmt.Errorf("create consultation: %w", err)
		}
	}
	return nil
}

func (r *consultationRepoKV) Delete(ctx context.Context, id string) error {
	_, err := localdb.UpdateList(ctx, r.db, localdb.Consultations, func(items []Consultation) ([]Consultation, error) {
		out := items[:0]
		for _, c := range items {
			if c.ID != id {
				out = append(out, c)
			}
		}
		return out, nil
	})
	return err
}

type prescriptionRepoKV struct {
	db *localdb.Database
}

func NewPrescriptionRepoKV(db *localdb.Database) PrescriptionRepository {
	return &prescriptionRepoKV{db: db}
}

func (r *prescriptionRepoKV) List(ctx context.Context) ([]Prescription, error) {
	return localdb.GetList[Prescription](ctx, r.db, localdb.Prescriptions)
}

func (r *prescriptionRepoKV) CreateAll(ctx context.Context, items []Prescription) error {
	if len(items) == 0 {
		return nil
	}
	applied, err := localdb.UpdateList(ctx, r.db, localdb.Prescriptions, func(cur []Prescription) ([]Prescription, error) {
		return append(cur, items...), nil
	})
	if err != nil {
		return err
	}
	if !applied {
		if err := r.db.Save(ctx, localdb.Prescriptions, items); err != nil {
			return fmt.Errorf("create prescriptions: %w", err)
		}
	}
	return nil
}
