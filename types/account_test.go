package types

import (
	"reflect"
	"testing"

	"github.com/shopspring/decimal"
)

func TestAccountSnapshot_Held(t *testing.T) {
	position := func(id SecurityID, amount, available int64) PositionSnapshot {
		return PositionSnapshot{
			SecurityID:    id,
			LongAmount:    decimal.NewFromInt(amount),
			AvailableLong: decimal.NewFromInt(available),
		}
	}
	tests := []struct {
		name      string
		positions []PositionSnapshot
		want      []SecurityID
	}{
		{"empty", nil, []SecurityID{}},
		{"sorted by id", []PositionSnapshot{position("b", 1, 1), position("a", 2, 2)}, []SecurityID{"a", "b"}},
		{"partly available", []PositionSnapshot{position("a", 200, 100)}, []SecurityID{"a"}},
		// a purchase still locked by T+1 settlement reads as not held, so the
		// dispatcher emits its open again until the position settles
		{"locked until settlement", []PositionSnapshot{position("a", 100, 0), position("b", 1, 1)}, []SecurityID{"b"}},
		{"closed out", []PositionSnapshot{position("a", 0, 0)}, []SecurityID{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := AccountSnapshot{Positions: tt.positions}.Held()
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Held() = %v, want %v", got, tt.want)
			}
		})
	}
}
