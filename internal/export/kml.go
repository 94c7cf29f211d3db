package export

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/geoproapp/geopro-server/internal/domain"
)

const kmlNamespace = "http://www.opengis.net/kml/2.2"

// ErrExists is returned by WriteFile when the target exists and overwriting
// was not requested.
var ErrExists = errors.New("export: output file already exists")

// ExtendedData keys.
const (
	dataRecord   = "record_id"
	dataCategory = "category"
	dataIcon     = "icon"
	dataSource   = "source_id"
	dataOutcome  = "outcome"
	dataScore    = "score"
	dataAddress  = "address"
)

type kmlRoot struct {
	XMLName  xml.Name    `xml:"kml"`
	Xmlns    string      `xml:"xmlns,attr"`
	Document kmlDocument `xml:"Document"`
}

type kmlDocument struct {
	ID      string      `xml:"id,attr,omitempty"`
	Name    string      `xml:"name"`
	Folders []kmlFolder `xml:"Folder"`
}

type kmlFolder struct {
	Name       string         `xml:"name"`
	Placemarks []kmlPlacemark `xml:"Placemark"`
}

type kmlPlacemark struct {
	Name         string          `xml:"name"`
	Description  string          `xml:"description,omitempty"`
	ExtendedData kmlExtendedData `xml:"ExtendedData"`
	Point        kmlPoint        `xml:"Point"`
}

type kmlExtendedData struct {
	Data []kmlData `xml:"Data"`
}

type kmlData struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

type kmlPoint struct {
	Coordinates string `xml:"coordinates"`
}

// Encode writes doc as KML 2.2.
func Encode(w io.Writer, doc *Document) error {
	root := kmlRoot{
		Xmlns:    kmlNamespace,
		Document: kmlDocument{ID: doc.ID, Name: doc.Name},
	}
	for _, f := range doc.Folders {
		kf := kmlFolder{Name: f.Name}
		for _, p := range f.Placemarks {
			kf.Placemarks = append(kf.Placemarks, toKML(p))
		}
		root.Document.Folders = append(root.Document.Folders, kf)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(root); err != nil {
		return fmt.Errorf("encode kml: %w", err)
	}
	_, err := io.WriteString(w, "\n")
	return err
}

func toKML(p Placemark) kmlPlacemark {
	data := []kmlData{
		{Name: dataRecord, Value: p.RecordID},
		{Name: dataCategory, Value: p.CategoryID},
		{Name: dataIcon, Value: p.IconID},
		{Name: dataOutcome, Value: string(p.Outcome)},
	}
	if p.SourceID != "" {
		data = append(data, kmlData{Name: dataSource, Value: p.SourceID})
	}
	if p.Outcome == domain.OutcomeMatched {
		data = append(data, kmlData{Name: dataScore, Value: strconv.FormatFloat(p.Score, 'f', 4, 64)})
	}
	if p.Address != "" {
		data = append(data, kmlData{Name: dataAddress, Value: p.Address})
	}

	return kmlPlacemark{
		Name:         p.Name,
		Description:  p.Description,
		ExtendedData: kmlExtendedData{Data: data},
		Point: kmlPoint{
			// KML orders longitude first.
			Coordinates: strconv.FormatFloat(p.Coordinates.Lon, 'f', 7, 64) + "," +
				strconv.FormatFloat(p.Coordinates.Lat, 'f', 7, 64),
		},
	}
}

// Parse reads a KML document written by Encode. Placemarks without a valid
// point are an error.
func Parse(r io.Reader) (*Document, error) {
	var root kmlRoot
	if err := xml.NewDecoder(r).Decode(&root); err != nil {
		return nil, fmt.Errorf("decode kml: %w", err)
	}

	doc := &Document{ID: root.Document.ID, Name: root.Document.Name}
	for _, kf := range root.Document.Folders {
		f := Folder{Name: kf.Name}
		for i, kp := range kf.Placemarks {
			p, err := fromKML(kp)
			if err != nil {
				return nil, fmt.Errorf("folder %q placemark %d: %w", kf.Name, i, err)
			}
			f.Placemarks = append(f.Placemarks, p)
		}
		doc.Folders = append(doc.Folders, f)
	}
	return doc, nil
}

func fromKML(kp kmlPlacemark) (Placemark, error) {
	pos, err := parseCoordinates(kp.Point.Coordinates)
	if err != nil {
		return Placemark{}, err
	}

	p := Placemark{
		Name:        kp.Name,
		Description: kp.Description,
		Coordinates: pos,
	}
	for _, d := range kp.ExtendedData.Data {
		switch d.Name {
		case dataRecord:
			p.RecordID = d.Value
		case dataCategory:
			p.CategoryID = d.Value
		case dataIcon:
			p.IconID = d.Value
		case dataSource:
			p.SourceID = d.Value
		case dataOutcome:
			p.Outcome = domain.OutcomeKind(d.Value)
		case dataScore:
			p.Score, _ = strconv.ParseFloat(d.Value, 64)
		case dataAddress:
			p.Address = d.Value
		}
	}
	return p, nil
}

// parseCoordinates reads "lon,lat[,alt]".
func parseCoordinates(s string) (domain.Coordinates, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) < 2 {
		return domain.Coordinates{}, fmt.Errorf("invalid coordinates %q", s)
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("invalid longitude %q", parts[0])
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("invalid latitude %q", parts[1])
	}
	pos := domain.Coordinates{Lat: lat, Lon: lon}
	if !pos.Valid() {
		return domain.Coordinates{}, fmt.Errorf("coordinates out of range %q", s)
	}
	return pos, nil
}

// WriteFile encodes doc to path. An existing file is only replaced when
// overwrite is set.
func WriteFile(path string, doc *Document, overwrite bool) error {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%w: %s", ErrExists, path)
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := Encode(f, doc); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
