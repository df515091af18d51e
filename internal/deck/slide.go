package deck

import (
	"fmt"
	"html"
	"strings"

	"github.com/bangdoll/tubenotes/internal/slides"
)

// Slide geometry, in EMU (914400 per inch). 16:9 at 13.333 x 7.5 inches.
const (
	emuPerInch     = 914400
	slideWidthEMU  = 12192000
	slideHeightEMU = 6858000
)

// The split layout reserves the left 7 inches for the page picture and the
// remaining column for text.
const splitImageMaxWidthIn = 7.0

// Units that carry no colors render on the dark fallback theme.
const (
	fallbackBackground = "18181B"
	fallbackText       = "FFFFFF"
)

func inchesEMU(in float64) int64 {
	return int64(in*emuPerInch + 0.5)
}

// hexColor normalizes a #rrggbb string for OOXML srgbClr, which takes bare
// uppercase hex. Anything malformed falls back.
func hexColor(s, fallback string) string {
	s = strings.TrimPrefix(strings.TrimSpace(s), "#")
	if len(s) != 6 {
		return fallback
	}
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return fallback
		}
	}
	return strings.ToUpper(s)
}

// textBox is one positioned text frame. Offsets and extents are in inches,
// sizes in points.
type textBox struct {
	x, y, w, h   float64
	sizePt       int
	bold         bool
	centered     bool
	spaceAfterPt int
	color        string
	paras        []string
}

func (t textBox) xml(shapeID int, name string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<p:sp><p:nvSpPr><p:cNvPr id="%d" name="%s"/><p:cNvSpPr txBox="1"/><p:nvPr/></p:nvSpPr>`, shapeID, name)
	fmt.Fprintf(&sb, `<p:spPr><a:xfrm><a:off x="%d" y="%d"/><a:ext cx="%d" cy="%d"/></a:xfrm>`,
		inchesEMU(t.x), inchesEMU(t.y), inchesEMU(t.w), inchesEMU(t.h))
	sb.WriteString(`<a:prstGeom prst="rect"><a:avLst/></a:prstGeom><a:noFill/></p:spPr>`)
	sb.WriteString(`<p:txBody><a:bodyPr wrap="square"><a:normAutofit/></a:bodyPr><a:lstStyle/>`)
	for _, para := range t.paras {
		sb.WriteString(`<a:p>`)
		if t.centered || t.spaceAfterPt > 0 {
			sb.WriteString(`<a:pPr`)
			if t.centered {
				sb.WriteString(` algn="ctr"`)
			}
			sb.WriteString(`>`)
			if t.spaceAfterPt > 0 {
				fmt.Fprintf(&sb, `<a:spcAft><a:spcPts val="%d"/></a:spcAft>`, t.spaceAfterPt*100)
			}
			sb.WriteString(`</a:pPr>`)
		}
		fmt.Fprintf(&sb, `<a:r><a:rPr sz="%d"`, t.sizePt*100)
		if t.bold {
			sb.WriteString(` b="1"`)
		}
		fmt.Fprintf(&sb, ` dirty="0"><a:solidFill><a:srgbClr val="%s"/></a:solidFill></a:rPr><a:t>%s</a:t></a:r>`,
			t.color, html.EscapeString(para))
		sb.WriteString(`</a:p>`)
	}
	sb.WriteString(`</p:txBody></p:sp>`)
	return sb.String()
}

func pictureXML(shapeID int, relID string, cx, cy int64) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, `<p:pic><p:nvPicPr><p:cNvPr id="%d" name="Page Image"/><p:cNvPicPr><a:picLocks noChangeAspect="1"/></p:cNvPicPr><p:nvPr/></p:nvPicPr>`, shapeID)
	fmt.Fprintf(&sb, `<p:blipFill><a:blip r:embed="%s"/><a:stretch><a:fillRect/></a:stretch></p:blipFill>`, relID)
	fmt.Fprintf(&sb, `<p:spPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="%d" cy="%d"/></a:xfrm><a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr></p:pic>`, cx, cy)
	return sb.String()
}

// splitPictureExt scales a page picture to the full slide height, capped at
// the picture column width. prepareImage already crops to the column aspect,
// so the cap only absorbs rounding.
func splitPictureExt(w, h int) (cx, cy int64) {
	cy = slideHeightEMU
	if h > 0 {
		cx = int64(float64(cy) * float64(w) / float64(h))
	}
	if max := inchesEMU(splitImageMaxWidthIn); cx > max || cx == 0 {
		cx = max
	}
	return cx, cy
}

// buildSlideXML renders one unit as a slide part. pic may be nil when the
// page image could not be decoded or the layout has no picture region.
func buildSlideXML(a slides.PageAnalysis, pic *pageImage, picRelID string) string {
	bg := hexColor(a.BackgroundColor, fallbackBackground)
	txt := hexColor(a.TextColor, fallbackText)

	var shapes []string
	shapeID := 2
	add := func(s string) {
		shapes = append(shapes, s)
		shapeID++
	}

	switch a.Layout {
	case slides.LayoutFullWidthText:
		if a.Title != "" {
			add(textBox{x: 1, y: 0.5, w: 11.3, h: 1.5, sizePt: 36, bold: true, centered: true, color: txt, paras: []string{a.Title}}.xml(shapeID, "Title"))
		}
		if len(a.Content) > 0 {
			add(textBox{x: 1.5, y: 2.2, w: 10.3, h: 4.5, sizePt: 20, spaceAfterPt: 20, color: txt, paras: a.Content}.xml(shapeID, "Content"))
		}
	case slides.LayoutComparison:
		if a.Title != "" {
			add(textBox{x: 1, y: 0.5, w: 11.3, h: 1.5, sizePt: 28, bold: true, centered: true, color: txt, paras: []string{a.Title}}.xml(shapeID, "Title"))
		}
		left, right := splitColumns(a.Content)
		if len(left) > 0 {
			add(textBox{x: 0.8, y: 2.2, w: 5.6, h: 4.5, sizePt: 16, spaceAfterPt: 12, color: txt, paras: left}.xml(shapeID, "Left Column"))
		}
		if len(right) > 0 {
			add(textBox{x: 6.9, y: 2.2, w: 5.6, h: 4.5, sizePt: 16, spaceAfterPt: 12, color: txt, paras: right}.xml(shapeID, "Right Column"))
		}
	default:
		if pic != nil {
			cx, cy := splitPictureExt(pic.width, pic.height)
			add(pictureXML(shapeID, picRelID, cx, cy))
		}
		if a.Title != "" {
			add(textBox{x: 7, y: 0.5, w: 5.8, h: 1.5, sizePt: 28, bold: true, color: txt, paras: []string{a.Title}}.xml(shapeID, "Title"))
		}
		if len(a.Content) > 0 {
			add(textBox{x: 7, y: 2.2, w: 5.8, h: 4.5, sizePt: 16, spaceAfterPt: 12, color: txt, paras: a.Content}.xml(shapeID, "Content"))
		}
	}

	var sb strings.Builder
	sb.WriteString(xmlHeader)
	fmt.Fprintf(&sb, `<p:sld xmlns:a="%s" xmlns:r="%s" xmlns:p="%s"><p:cSld>`, nsDrawing, nsRel, nsPresenta)
	fmt.Fprintf(&sb, `<p:bg><p:bgPr><a:solidFill><a:srgbClr val="%s"/></a:solidFill><a:effectLst/></p:bgPr></p:bg>`, bg)
	sb.WriteString(`<p:spTree>`)
	sb.WriteString(`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>`)
	sb.WriteString(`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`)
	for _, s := range shapes {
		sb.WriteString(s)
	}
	sb.WriteString(`</p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:sld>`)
	return sb.String()
}

// splitColumns halves the content for the comparison layout, extra item on
// the left.
func splitColumns(content []string) (left, right []string) {
	mid := (len(content) + 1) / 2
	return content[:mid], content[mid:]
}

// notesSlideXML renders the speaker notes part, one paragraph per line.
func notesSlideXML(notes string) string {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	fmt.Fprintf(&sb, `<p:notes xmlns:a="%s" xmlns:r="%s" xmlns:p="%s"><p:cSld><p:spTree>`, nsDrawing, nsRel, nsPresenta)
	sb.WriteString(`<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>`)
	sb.WriteString(`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`)
	sb.WriteString(`<p:sp><p:nvSpPr><p:cNvPr id="2" name="Notes Placeholder"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr>`)
	sb.WriteString(`<p:spPr/><p:txBody><a:bodyPr/><a:lstStyle/>`)
	for _, line := range strings.Split(notes, "\n") {
		fmt.Fprintf(&sb, `<a:p><a:r><a:rPr dirty="0"/><a:t>%s</a:t></a:r></a:p>`, html.EscapeString(line))
	}
	sb.WriteString(`</p:txBody></p:sp></p:spTree></p:cSld><p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr></p:notes>`)
	return sb.String()
}
