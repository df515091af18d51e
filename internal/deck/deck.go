// Package deck writes reconstructed slide analyses as PowerPoint (.pptx)
// packages. Parts are generated directly as presentationml XML and zipped,
// one slide per analyzed page unit, in unit order.
package deck

import (
	"archive/zip"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/bangdoll/tubenotes/internal/slides"
)

// Builder assembles .pptx packages. It implements the pipeline's DeckBuilder.
type Builder struct {
	Log *logrus.Entry
}

func NewBuilder(log *logrus.Entry) *Builder {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Builder{Log: log}
}

// Build writes one slide per unit, in unit order. Units whose page image
// cannot be decoded still get their slide, just without the picture.
func (b *Builder) Build(units []slides.PageResult, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("creating presentation file: %w", err)
	}
	zw := zip.NewWriter(f)
	if err := b.writeParts(zw, units, outputPath); err != nil {
		zw.Close()
		f.Close()
		os.Remove(outputPath)
		return err
	}
	if err := zw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("finalizing presentation: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing presentation: %w", err)
	}
	b.Log.WithFields(logrus.Fields{
		"slides": len(units),
		"path":   outputPath,
	}).Debug("presentation package written")
	return nil
}

type slidePart struct {
	xml       string
	rels      []relEntry
	notesNum  int // 0 when the unit carries no speaker notes
	notesXML  string
	mediaName string // "" when the slide has no picture
	mediaData []byte
}

func (b *Builder) writeParts(zw *zip.Writer, units []slides.PageResult, outputPath string) error {
	parts := make([]slidePart, len(units))
	imageCount := 0
	for i, u := range units {
		n := i + 1
		sp := slidePart{rels: []relEntry{{"rId1", relTypeSlideLayout, "../slideLayouts/slideLayout1.xml"}}}
		nextRel := 2

		var pic *pageImage
		if wantsPicture(u.Analysis.Layout) && len(u.Image) > 0 {
			p, err := prepareImage(u.Image, u.Analysis.ImageBBox, true)
			if err != nil {
				b.Log.WithError(err).WithField("slide", n).Warn("slide picture skipped")
			} else {
				pic = p
			}
		}
		picRelID := ""
		if pic != nil {
			imageCount++
			sp.mediaName = fmt.Sprintf("ppt/media/image%d.jpg", imageCount)
			sp.mediaData = pic.data
			picRelID = fmt.Sprintf("rId%d", nextRel)
			sp.rels = append(sp.rels, relEntry{picRelID, relTypeImage, fmt.Sprintf("../media/image%d.jpg", imageCount)})
			nextRel++
		}
		if u.Analysis.SpeakerNotes != "" {
			sp.notesNum = n
			sp.notesXML = notesSlideXML(u.Analysis.SpeakerNotes)
			sp.rels = append(sp.rels, relEntry{fmt.Sprintf("rId%d", nextRel), relTypeNotesSlide, fmt.Sprintf("../notesSlides/notesSlide%d.xml", n)})
			nextRel++
		}
		sp.xml = buildSlideXML(u.Analysis, pic, picRelID)
		parts[i] = sp
	}

	if err := writePart(zw, "[Content_Types].xml", contentTypesXML(parts)); err != nil {
		return err
	}
	if err := writePart(zw, "_rels/.rels", rootRelsXML); err != nil {
		return err
	}
	title := strings.TrimSuffix(filepath.Base(outputPath), filepath.Ext(outputPath))
	if err := writePart(zw, "docProps/core.xml", corePropsXML(title)); err != nil {
		return err
	}
	if err := writePart(zw, "docProps/app.xml", appPropsXML); err != nil {
		return err
	}

	notesMasterRelID := fmt.Sprintf("rId%d", len(parts)+2)
	if err := writePart(zw, "ppt/presentation.xml", presentationXML(len(parts), notesMasterRelID)); err != nil {
		return err
	}
	if err := writePart(zw, "ppt/_rels/presentation.xml.rels", presentationRelsXML(len(parts), notesMasterRelID)); err != nil {
		return err
	}

	static := []struct {
		name    string
		content string
	}{
		{"ppt/theme/theme1.xml", themeXML},
		{"ppt/slideMasters/slideMaster1.xml", slideMasterXML},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", slideMasterRelsXML},
		{"ppt/slideLayouts/slideLayout1.xml", slideLayoutXML},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", slideLayoutRelsXML},
		{"ppt/notesMasters/notesMaster1.xml", notesMasterXML},
		{"ppt/notesMasters/_rels/notesMaster1.xml.rels", notesMasterRelsXML},
	}
	for _, p := range static {
		if err := writePart(zw, p.name, p.content); err != nil {
			return err
		}
	}

	for i, sp := range parts {
		n := i + 1
		if err := writePart(zw, fmt.Sprintf("ppt/slides/slide%d.xml", n), sp.xml); err != nil {
			return err
		}
		if err := writePart(zw, fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", n), relsXML(sp.rels)); err != nil {
			return err
		}
		if sp.mediaName != "" {
			if err := writeBinaryPart(zw, sp.mediaName, sp.mediaData); err != nil {
				return err
			}
		}
		if sp.notesNum > 0 {
			if err := writePart(zw, fmt.Sprintf("ppt/notesSlides/notesSlide%d.xml", sp.notesNum), sp.notesXML); err != nil {
				return err
			}
			rels := []relEntry{
				{"rId1", relTypeNotesMaster, "../notesMasters/notesMaster1.xml"},
				{"rId2", relTypeSlide, fmt.Sprintf("../slides/slide%d.xml", sp.notesNum)},
			}
			if err := writePart(zw, fmt.Sprintf("ppt/notesSlides/_rels/notesSlide%d.xml.rels", sp.notesNum), relsXML(rels)); err != nil {
				return err
			}
		}
	}
	return nil
}

// wantsPicture reports whether the layout has a picture region. Unknown
// layouts fall through to the split layout, which does.
func wantsPicture(l slides.Layout) bool {
	return l != slides.LayoutFullWidthText && l != slides.LayoutComparison
}

type relEntry struct {
	id     string
	typ    string
	target string
}

func relsXML(rels []relEntry) string {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	fmt.Fprintf(&sb, `<Relationships xmlns="%s">`, nsPkgRel)
	for _, r := range rels {
		fmt.Fprintf(&sb, `<Relationship Id="%s" Type="%s" Target="%s"/>`, r.id, r.typ, r.target)
	}
	sb.WriteString(`</Relationships>`)
	return sb.String()
}

func presentationXML(slideCount int, notesMasterRelID string) string {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	fmt.Fprintf(&sb, `<p:presentation xmlns:a="%s" xmlns:r="%s" xmlns:p="%s">`, nsDrawing, nsRel, nsPresenta)
	sb.WriteString(`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`)
	fmt.Fprintf(&sb, `<p:notesMasterIdLst><p:notesMasterId r:id="%s"/></p:notesMasterIdLst>`, notesMasterRelID)
	sb.WriteString(`<p:sldIdLst>`)
	for i := 0; i < slideCount; i++ {
		fmt.Fprintf(&sb, `<p:sldId id="%d" r:id="rId%d"/>`, 256+i, i+2)
	}
	sb.WriteString(`</p:sldIdLst>`)
	fmt.Fprintf(&sb, `<p:sldSz cx="%d" cy="%d"/><p:notesSz cx="6858000" cy="9144000"/>`, slideWidthEMU, slideHeightEMU)
	sb.WriteString(`</p:presentation>`)
	return sb.String()
}

func presentationRelsXML(slideCount int, notesMasterRelID string) string {
	rels := []relEntry{{"rId1", relTypeSlideMaster, "slideMasters/slideMaster1.xml"}}
	for i := 0; i < slideCount; i++ {
		rels = append(rels, relEntry{fmt.Sprintf("rId%d", i+2), relTypeSlide, fmt.Sprintf("slides/slide%d.xml", i+1)})
	}
	rels = append(rels, relEntry{notesMasterRelID, relTypeNotesMaster, "notesMasters/notesMaster1.xml"})
	return relsXML(rels)
}

func contentTypesXML(parts []slidePart) string {
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	fmt.Fprintf(&sb, `<Types xmlns="%s">`, nsPkgTypes)
	sb.WriteString(`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`)
	sb.WriteString(`<Default Extension="xml" ContentType="application/xml"/>`)
	sb.WriteString(`<Default Extension="jpg" ContentType="image/jpeg"/>`)
	sb.WriteString(`<Default Extension="jpeg" ContentType="image/jpeg"/>`)
	fmt.Fprintf(&sb, `<Override PartName="/ppt/presentation.xml" ContentType="%s"/>`, ctPresentation)
	fmt.Fprintf(&sb, `<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="%s"/>`, ctSlideMaster)
	fmt.Fprintf(&sb, `<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="%s"/>`, ctSlideLayout)
	fmt.Fprintf(&sb, `<Override PartName="/ppt/notesMasters/notesMaster1.xml" ContentType="%s"/>`, ctNotesMaster)
	fmt.Fprintf(&sb, `<Override PartName="/ppt/theme/theme1.xml" ContentType="%s"/>`, ctTheme)
	for i, sp := range parts {
		fmt.Fprintf(&sb, `<Override PartName="/ppt/slides/slide%d.xml" ContentType="%s"/>`, i+1, ctSlide)
		if sp.notesNum > 0 {
			fmt.Fprintf(&sb, `<Override PartName="/ppt/notesSlides/notesSlide%d.xml" ContentType="%s"/>`, sp.notesNum, ctNotesSlide)
		}
	}
	fmt.Fprintf(&sb, `<Override PartName="/docProps/core.xml" ContentType="%s"/>`, ctCoreProps)
	fmt.Fprintf(&sb, `<Override PartName="/docProps/app.xml" ContentType="%s"/>`, ctExtProps)
	sb.WriteString(`</Types>`)
	return sb.String()
}

func corePropsXML(title string) string {
	stamp := time.Now().UTC().Format("2006-01-02T15:04:05Z")
	var sb strings.Builder
	sb.WriteString(xmlHeader)
	fmt.Fprintf(&sb, `<cp:coreProperties xmlns:cp="%s" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`, nsCoreProps)
	fmt.Fprintf(&sb, `<dc:title>%s</dc:title><dc:creator>tubenotes</dc:creator>`, html.EscapeString(title))
	fmt.Fprintf(&sb, `<dcterms:created xsi:type="dcterms:W3CDTF">%s</dcterms:created>`, stamp)
	fmt.Fprintf(&sb, `<dcterms:modified xsi:type="dcterms:W3CDTF">%s</dcterms:modified>`, stamp)
	sb.WriteString(`</cp:coreProperties>`)
	return sb.String()
}

func writePart(zw *zip.Writer, name, content string) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("creating part %s: %w", name, err)
	}
	if _, err := w.Write([]byte(content)); err != nil {
		return fmt.Errorf("writing part %s: %w", name, err)
	}
	return nil
}

func writeBinaryPart(zw *zip.Writer, name string, data []byte) error {
	w, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("creating part %s: %w", name, err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing part %s: %w", name, err)
	}
	return nil
}
