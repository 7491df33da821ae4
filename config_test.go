package docksmaker

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"gonum.org/v1/gonum/floats/scalar"
)

const testConfig = `
[general]
epoch = "1996-12-30T00:00:00"
central_body = "earth"

[bodies.probe]
mu = 1.0
radius = 2.0

[bodies.earth]
mu = 3.986004418e14
radius = 6378137.0

[[perturbers]]
name = "moon"
position = [384400.0, 0.0, 0.0]

[transfer]
r0 = [7000.0, 0.0, 0.0]
v0 = [0.0, 7.5, 0.0]
target = [0.0, 7000.0, 0.0]
tof = 3600.0

[propagator]
rtol = 1e-10
max_steps = 5000

[shooting]
method = "newton"
gain = 0.5

[montecarlo]
samples = 12
seed = 7
sampler = "elements"
scoring = "closest"
max_duration = "1m30s"
log_ranges = ["a"]

[montecarlo.ranges]
a = [7000.0, 8000.0]
e = [0.0, 0.1]
i = [28.5]
`

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "docksmaker.toml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("err %s", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	os.Unsetenv(ConfigEnv)
	conf, err := LoadConfig("")
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if conf.General.CentralBody != "sun" || conf.MonteCarlo.Samples != 1000 || conf.MonteCarlo.Seed != 42 {
		t.Fatalf("unexpected defaults %+v", conf)
	}
	if conf.Tolerances() != DefaultTolerances() {
		t.Fatalf("tolerances %+v", conf.Tolerances())
	}
	if DefaultConfig().Shooting != conf.Shooting || DefaultConfig().MonteCarlo.Scoring != conf.MonteCarlo.Scoring {
		t.Fatal("DefaultConfig differs from an empty configuration")
	}
	field, err := conf.GravityField()
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if !field.Central.Equals(Sun) || len(field.Perturbers) != 0 {
		t.Fatalf("unexpected field %+v", field)
	}
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, testConfig)
	os.Setenv(ConfigEnv, filepath.Dir(path))
	defer os.Unsetenv(ConfigEnv)
	conf, err := LoadConfig("")
	if err != nil {
		t.Fatalf("err %s", err)
	}
	epoch, _ := conf.Epoch()
	arrival, err := conf.Arrival()
	if err != nil || arrival.Sub(epoch) != time.Hour {
		t.Fatalf("arrival %s (%v)", arrival, err)
	}
	table, err := conf.BodyTable()
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if probe, err := table.Get("probe"); err != nil || probe.GM() != 1 {
		t.Fatalf("probe %s (%v)", probe, err)
	}
	field, err := conf.GravityField()
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if field.Central.GM() != 3.986004418e14 || len(field.Perturbers) != 1 || field.Perturbers[0].Name != "Moon" {
		t.Fatalf("unexpected field %+v", field)
	}
	if pos, _ := field.Perturbers[0].Ephemeris.PositionAt(0); pos != (Vector{3.844e8, 0, 0}) {
		t.Fatalf("moon at %s", pos)
	}
	prop, err := conf.NewPropagator(nil)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if prop.Tolerances.RelTol != 1e-10 || prop.Tolerances.AbsTol != 1e-9 || prop.Tolerances.MaxSteps != 5000 {
		t.Fatalf("tolerances %+v", prop.Tolerances)
	}
	shooter, err := conf.NewShooter(prop, nil)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if shooter.Method != Newton || shooter.Gain != 0.5 || shooter.MaxIterations != 50 {
		t.Fatalf("shooter %+v", shooter)
	}
	dep, err := conf.Departure()
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if dep.R != (Vector{7e6, 0, 0}) || dep.V != (Vector{0, 7.5e3, 0}) {
		t.Fatalf("departure %s", dep)
	}
	sampler, err := conf.NewSampler()
	if err != nil {
		t.Fatalf("err %s", err)
	}
	es, ok := sampler.(ElementSampler)
	if !ok {
		t.Fatalf("expected an element sampler, got %T", sampler)
	}
	if es.A != (Range{Min: 7e6, Max: 8e6, Log: true}) || es.I != Fixed(28.5) || es.Mu != field.Central.GM() {
		t.Fatalf("sampler %+v", es)
	}
	sc, err := conf.SearchConfig(nil)
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if sc.Samples != 12 || sc.Seed != 7 || sc.Scoring != ScoreClosestApproach || sc.MaxDuration != 90*time.Second {
		t.Fatalf("search config %+v", sc)
	}
	if !scalar.EqualWithinAbs(sc.RefineFraction, 0.05, 1e-15) {
		t.Fatalf("refine fraction %f", sc.RefineFraction)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected an error for a missing file")
	}
	for _, content := range []string{
		"[general]\nepoch = \"yesterday\"\n",
		"[lambert]\nbranch = \"sideways\"\n",
		"[shooting]\nmethod = \"secant\"\n",
		"[montecarlo]\nsink = \"kafka\"\n",
	} {
		if _, err := LoadConfig(writeConfig(t, content)); KindOf(err) != InvalidInput {
			t.Fatalf("expected invalid input for %q, got %v", content, err)
		}
	}
	conf, err := LoadConfig(writeConfig(t, "[[perturbers]]\nname = \"mars\"\nsource = \"vsop87\"\n"))
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if _, err := conf.GravityField(); KindOf(err) != InvalidInput {
		t.Fatalf("expected a missing VSOP87 directory error, got %v", err)
	}
	conf, err = LoadConfig(writeConfig(t, "[[perturbers]]\nname = \"pluto\"\nposition = [1.0, 0.0, 0.0]\n"))
	if err != nil {
		t.Fatalf("err %s", err)
	}
	if _, err := conf.GravityField(); err == nil {
		t.Fatal("expected an undefined body error")
	}
	if _, err := conf.NewSampler(); err == nil {
		t.Fatal("delta_v sampler requires a departure state")
	}
}
