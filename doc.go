// Package trafficview is a live 3D viewer for traffic micro-simulations,
// built on [Ebitengine].
//
// It turns a road network into a static scene (lanes, junctions, lane
// seams, buildings, bus stops, water and scattered scenery), keeps traffic
// lights and vehicles in sync with a stream of simulation updates, and lets
// the user orbit, follow, pick and highlight what they see.
//
// # Quick start
//
//	net, _ := trafficview.DecodeNetwork(networkFile)
//	models, _ := trafficview.LoadModels(ctx, trafficview.BuiltinLoader{}, trafficview.DefaultModelSpecs())
//	static, _ := trafficview.Build(net, aux, models.Decorations(), trafficview.BuildOptions{})
//	scene := trafficview.NewScene(static, models, trafficview.NewConfigStore(settings))
//	trafficview.Run(scene, trafficview.RunConfig{Title: "traffic"})
//
// Feed updates arrive as [Update] values (see the feed package) and are
// applied with [Scene.ApplyUpdate] from the game loop, typically in
// [RunConfig.Tick].
//
// # Coordinates
//
// Simulation coordinates are meters with +Y north. Render space is Y-up and
// centered on the network: sim (x, y, z) maps to (x-cx, z, -(y-cy)).
// [CoordTransform] converts between the two and, when the network carries a
// projection, to and from WGS84.
//
// # Scene graph
//
// Every visual element is a [Node] holding a [Mesh] and one [Material] per
// material group. Static geometry is merged per kind; the
// [StaticMeshRegistry] maps domain ids back to the mesh regions that draw
// them, and per-face refs let picking resolve merged meshes.
//
// # Interaction
//
// Left-drag orbits, right-drag pans, the wheel zooms and a click picks.
// Clicks, follow changes and removed entities are reported through
// [Scene.OnClick], [Scene.OnFollow], [Scene.OnUnfollow] and
// [Scene.OnEntityRemoved], or to an ECS via [Scene.SetEntityStore]. All
// notifications are delivered at the end of the tick.
//
// [Ebitengine]: https://ebitengine.org
package trafficview
