package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

var (
	csvFile string
)

// Reads the CSV written by "gopcd scaling --csv" and fits the growth of the
// Krylov iteration count with the number of unknowns, its ~ ndofs^alpha.
// A mesh independent preconditioner has alpha near zero.
func main() {
	csvFilePtr := flag.String("csvFile", csvFile, "file containing entries of a scaling study")
	flag.Parse()
	csvFile = *csvFilePtr
	if len(csvFile) == 0 {
		flag.Usage()
		os.Exit(1)
	}
	fmt.Printf("Input file: %v\n", csvFile)
	f, err := os.Open(csvFile)
	if err != nil {
		panic(err)
	}
	defer f.Close()
	studies, err := readCSV(bufio.NewReader(f))
	if err != nil {
		panic(err)
	}
	titles := make([]string, 0, len(studies))
	for title := range studies {
		titles = append(titles, title)
	}
	sort.Strings(titles)
	for _, title := range titles {
		ss := studies[title]
		fmt.Printf("Title = %s\n", ss.title)
		for i := range ss.ndofs {
			fmt.Printf("%d, %v, %v\n", ss.ndofs[i], ss.picard[i], ss.krylov[i])
		}
		fmt.Printf("Krylov iteration growth exponent = %5.3f\n", ss.GrowthExponent())
	}
}

type ScalingStudy struct {
	title          string
	ndofs          []int
	picard, krylov []float64
}

func NewScalingStudy(title string) *ScalingStudy {
	return &ScalingStudy{
		title: title,
	}
}

func (ss *ScalingStudy) Add(ndofs, picard, krylov int) {
	ss.ndofs = append(ss.ndofs, ndofs)
	ss.picard = append(ss.picard, float64(picard))
	ss.krylov = append(ss.krylov, float64(krylov))
}

// GrowthExponent is the least squares slope of log(krylov / picard) against
// log(ndofs), the average iterations per linear solve. NaN with fewer than two levels.
func (ss *ScalingStudy) GrowthExponent() (alpha float64) {
	if len(ss.ndofs) < 2 {
		return math.NaN()
	}
	var (
		x = make([]float64, len(ss.ndofs))
		y = make([]float64, len(ss.ndofs))
	)
	for i := range ss.ndofs {
		x[i] = math.Log(float64(ss.ndofs[i]))
		y[i] = math.Log(ss.krylov[i] / math.Max(1, ss.picard[i]))
	}
	_, alpha = stat.LinearRegression(x, y, nil, false)
	return
}

// readCSV parses rows of title, ndofs, ndofs_u, ndofs_p, picard, krylov, seconds
// after a header row
func readCSV(rd io.Reader) (studies map[string]*ScalingStudy, err error) {
	var (
		records [][]string
		ok      bool
		ss      *ScalingStudy
	)
	studies = make(map[string]*ScalingStudy)
	r := csv.NewReader(rd)
	r.FieldsPerRecord = 7
	if records, err = r.ReadAll(); err != nil {
		return
	}
	for i, rec := range records {
		if i == 0 {
			continue
		}
		var ndofs, picard, krylov int
		title := rec[0]
		for _, f := range []struct {
			txt string
			dst *int
		}{{rec[1], &ndofs}, {rec[4], &picard}, {rec[5], &krylov}} {
			if *f.dst, err = strconv.Atoi(f.txt); err != nil {
				return nil, fmt.Errorf("row %d: %w", i, err)
			}
		}
		if ss, ok = studies[title]; !ok {
			ss = NewScalingStudy(title)
			studies[title] = ss
		}
		ss.Add(ndofs, picard, krylov)
	}
	return
}
