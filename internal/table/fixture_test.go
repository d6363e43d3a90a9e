package table

import "testing"

var triggerLabels = []string{
	"Immediate",
	"BITA=0", "BITA=1",
	"BITB=0", "BITB=1",
	"BITC=0", "BITC=1",
	"POSA>=POSITION", "POSA<=POSITION",
	"POSB>=POSITION", "POSB<=POSITION",
	"POSC>=POSITION", "POSC<=POSITION",
}

// seqFields mirrors the sequencer table layout.
func seqFields() []Field {
	fields := []Field{
		{Name: "REPEATS", BitLow: 0, BitHigh: 15, Kind: KindUnsigned},
		{Name: "TRIGGER", BitLow: 16, BitHigh: 19, Kind: KindEnum, Labels: triggerLabels},
	}
	for i, name := range []string{"OUTA1", "OUTB1", "OUTC1", "OUTD1", "OUTE1", "OUTF1", "OUTA2", "OUTB2", "OUTC2", "OUTD2", "OUTE2", "OUTF2"} {
		fields = append(fields, Field{Name: name, BitLow: 20 + i, BitHigh: 20 + i, Kind: KindUnsigned})
	}
	return append(fields,
		Field{Name: "POSITION", BitLow: 32, BitHigh: 63, Kind: KindSigned},
		Field{Name: "TIME1", BitLow: 64, BitHigh: 95, Kind: KindUnsigned},
		Field{Name: "TIME2", BitLow: 96, BitHigh: 127, Kind: KindUnsigned},
	)
}

func seqSchema(t *testing.T) *Schema {
	t.Helper()
	schema, err := NewSchema(4, seqFields())
	if err != nil {
		t.Fatalf("seq schema: %v", err)
	}
	return schema
}

var seqWords = []string{
	"2457862149", "4294967291", "100", "0",
	"0", "0", "0", "0",
	"4293968720", "0", "9", "9999",
	"2035875928", "444444", "5", "1",
	"3464285461", "4294967197", "99999", "2222",
}

var seqColumns = map[string][]int64{
	"REPEATS":  {5, 0, 50000, 88, 52501},
	"TRIGGER":  {0, 0, 0, 9, 12},
	"OUTA1":    {0, 0, 1, 1, 1},
	"OUTB1":    {0, 0, 1, 0, 1},
	"OUTC1":    {0, 0, 1, 1, 1},
	"OUTD1":    {1, 0, 1, 0, 0},
	"OUTE1":    {0, 0, 1, 1, 0},
	"OUTF1":    {1, 0, 1, 0, 1},
	"OUTA2":    {0, 0, 1, 0, 1},
	"OUTB2":    {0, 0, 1, 1, 1},
	"OUTC2":    {1, 0, 1, 1, 0},
	"OUTD2":    {0, 0, 1, 1, 0},
	"OUTE2":    {0, 0, 1, 1, 1},
	"OUTF2":    {1, 0, 1, 0, 1},
	"POSITION": {-5, 0, 0, 444444, -99},
	"TIME1":    {100, 0, 9, 5, 99999},
	"TIME2":    {0, 0, 9999, 1, 2222},
}
