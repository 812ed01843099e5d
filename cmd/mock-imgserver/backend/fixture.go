package backend

// Fixture data served by the mock image repository.

type Image struct {
	ID         int64
	Name       string
	OwnerID    int64
	GroupID    int64
	DatasetID  int64
	PixelType  string
	Channels   int
	Width      int
	Height     int
	TileWidth  int
	TileHeight int
	Levels     int
	ZSize      int
	TSize      int
}

type Dataset struct {
	ID      int64
	Name    string
	OwnerID int64
	GroupID int64
	Images  []Image
}

type Project struct {
	ID       int64
	Name     string
	OwnerID  int64
	GroupID  int64
	Datasets []Dataset
}

type Fixture struct {
	Projects []Project
	Orphaned []Image
}

// DefaultFixture returns a small repository: one project with one dataset of
// two images, plus one orphaned image.
func DefaultFixture() *Fixture {
	return &Fixture{
		Projects: []Project{
			{
				ID: 101, Name: "Specimen survey", OwnerID: 7, GroupID: 3,
				Datasets: []Dataset{
					{
						ID: 201, Name: "Slide batch 1", OwnerID: 7, GroupID: 3,
						Images: []Image{
							{
								ID: 301, Name: "slide-001.tiff", OwnerID: 7, GroupID: 3, DatasetID: 201,
								PixelType: "uint8", Channels: 3,
								Width: 1024, Height: 768, TileWidth: 256, TileHeight: 256,
								Levels: 3, ZSize: 1, TSize: 1,
							},
							{
								ID: 302, Name: "stack-002.tiff", OwnerID: 8, GroupID: 3, DatasetID: 201,
								PixelType: "uint16", Channels: 4,
								Width: 512, Height: 512, TileWidth: 256, TileHeight: 256,
								Levels: 1, ZSize: 5, TSize: 1,
							},
						},
					},
				},
			},
		},
		Orphaned: []Image{
			{
				ID: 401, Name: "unsorted.tiff", OwnerID: 7, GroupID: 3,
				PixelType: "uint8", Channels: 3,
				Width: 256, Height: 256, TileWidth: 256, TileHeight: 256,
				Levels: 1, ZSize: 1, TSize: 1,
			},
		},
	}
}

// AllImages returns every image in the fixture, dataset members first.
func (f *Fixture) AllImages() []Image {
	var out []Image
	for _, p := range f.Projects {
		for _, d := range p.Datasets {
			out = append(out, d.Images...)
		}
	}
	out = append(out, f.Orphaned...)
	return out
}

// FindImage looks an image up by id.
func (f *Fixture) FindImage(id int64) (Image, bool) {
	for _, img := range f.AllImages() {
		if img.ID == id {
			return img, true
		}
	}
	return Image{}, false
}
