// Copyright 2026 The Docforge Authors
// SPDX-License-Identifier: Apache-2.0

package template

// defaultManifestYAML contains the built-in template definitions, one
// per output format. Bodies follow the template body contract: read
// output_path and intent, write the artifact to output_path, raise on
// failure. The trailing os.path.exists probe is belt-and-braces inside
// the template; the verifier re-checks the artifact regardless.
const defaultManifestYAML = `
templates:
  - format: spreadsheet
    version: 1
    capabilities: [openpyxl, numpy, os]
    body: |
      import os
      from openpyxl import Workbook

      wb = Workbook()
      ws = wb.active
      ws.title = "Generated"
      ws["A1"] = "Request"
      ws["B1"] = intent
      wb.save(output_path)

      if not os.path.exists(output_path):
          raise ValueError("spreadsheet artifact was not written")

  - format: document
    version: 1
    capabilities: [docx, numpy, os]
    body: |
      import os
      from docx import Document

      doc = Document()
      doc.add_heading("Generated document", level=1)
      doc.add_paragraph(intent)
      doc.save(output_path)

      if not os.path.exists(output_path):
          raise ValueError("document artifact was not written")

  - format: presentation
    version: 1
    capabilities: [pptx, numpy, os]
    body: |
      import os
      from pptx import Presentation
      from pptx.util import Inches

      prs = Presentation()
      # 16:9 slide ratio, not the library's 4:3 default.
      prs.slide_width = Inches(13.333)
      prs.slide_height = Inches(7.5)

      slide = prs.slides.add_slide(prs.slide_layouts[0])
      slide.shapes.title.text = "Generated presentation"
      slide.placeholders[1].text = intent
      prs.save(output_path)

      if not os.path.exists(output_path):
          raise ValueError("presentation artifact was not written")

  - format: markdown
    version: 1
    capabilities: [pypandoc, numpy, os]
    body: |
      import os

      lines = ["# Generated document", "", intent, ""]
      with open(output_path, "w", encoding="utf-8") as handle:
          handle.write("\n".join(lines))

      if not os.path.exists(output_path):
          raise ValueError("markdown artifact was not written")
`
