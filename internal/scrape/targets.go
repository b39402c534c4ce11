package scrape

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultTeamTargets is the VCT partner team list used when no targets are
// given.
var DefaultTeamTargets = []string{
	// EMEA
	"https://www.vlr.gg/team/1001/team-heretics",
	"https://www.vlr.gg/team/2593/fnatic",
	"https://www.vlr.gg/team/397/bbl-esports",
	"https://www.vlr.gg/team/1184/fut-esports",
	"https://www.vlr.gg/team/2059/team-vitality",
	"https://www.vlr.gg/team/14419/giantx",
	"https://www.vlr.gg/team/12694/gentle-mates",
	"https://www.vlr.gg/team/474/team-liquid",
	"https://www.vlr.gg/team/4915/natus-vincere",
	"https://www.vlr.gg/team/8877/karmine-corp",
	"https://www.vlr.gg/team/7035/koi",
	"https://www.vlr.gg/team/11479/apeks",
	// Americas
	"https://www.vlr.gg/team/5248/sentinels",
	"https://www.vlr.gg/team/188/cloud9",
	"https://www.vlr.gg/team/5987/100-thieves",
	// APAC
	"https://www.vlr.gg/team/8127/paper-rex",
	"https://www.vlr.gg/team/6199/drx",
}

// ReadTargets reads one URL per line, ignoring blank lines and # comments.
func ReadTargets(r io.Reader) ([]string, error) {
	var targets []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		targets = append(targets, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read targets: %w", err)
	}
	return targets, nil
}

// LoadTargets reads a target file from path.
func LoadTargets(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open targets file: %w", err)
	}
	defer f.Close()
	return ReadTargets(f)
}
